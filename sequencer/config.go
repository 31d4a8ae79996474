package sequencer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// NumSteps is the fixed number of steps in a pattern
const NumSteps = 16

// DefaultLatency compensates for host output latency
const DefaultLatency = 15 * time.Millisecond

// StepLength is a named musical note length for one step
type StepLength string

const (
	StepBar       StepLength = "1 Bar"
	StepHalf      StepLength = "1 / 2"
	StepQuarter   StepLength = "1 / 4"
	StepEighth    StepLength = "1 / 8"
	StepSixteenth StepLength = "1 / 16"
)

// StepLengths lists the accepted step lengths, longest first
var StepLengths = []StepLength{StepBar, StepHalf, StepQuarter, StepEighth, StepSixteenth}

// StepsPerQuarter returns how many steps fit in one quarter note. ok is false
// for a length outside the table.
func (l StepLength) StepsPerQuarter() (perQuarter float64, ok bool) {
	switch l {
	case StepBar:
		return 0.25, true
	case StepHalf:
		return 0.5, true
	case StepQuarter:
		return 1, true
	case StepEighth:
		return 2, true
	case StepSixteenth:
		return 4, true
	}
	return 0, false
}

// ParseStepLength accepts the table names and the compact forms "1/16", "bar"
func ParseStepLength(s string) (StepLength, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	for _, l := range StepLengths {
		if strings.ToLower(strings.ReplaceAll(string(l), " ", "")) == norm {
			return l, nil
		}
	}
	if norm == "bar" {
		return StepBar, nil
	}
	return "", &ConfigError{Code: ErrCodeStepLength, Field: "step_length", Message: fmt.Sprintf("unknown step length %q", s)}
}

// TriggerCondition opens a step only on the A-th cycle of every B cycles
type TriggerCondition struct {
	A, B int
}

// Always is the 1:1 condition
var Always = TriggerCondition{A: 1, B: 1}

func (c TriggerCondition) String() string {
	return fmt.Sprintf("%d:%d", c.A, c.B)
}

// Valid reports whether 1 <= A <= B
func (c TriggerCondition) Valid() bool {
	return c.A >= 1 && c.A <= c.B
}

// Matches reports whether cycle is one of the condition's cycles
func (c TriggerCondition) Matches(cycle int64) bool {
	return floorMod(cycle, int64(c.B))+1 == int64(c.A)
}

// ParseCondition parses "A:B" text
func ParseCondition(s string) (TriggerCondition, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TriggerCondition{}, conditionError(s)
	}
	na, errA := strconv.Atoi(strings.TrimSpace(a))
	nb, errB := strconv.Atoi(strings.TrimSpace(b))
	if errA != nil || errB != nil {
		return TriggerCondition{}, conditionError(s)
	}
	c := TriggerCondition{A: na, B: nb}
	if !c.Valid() {
		return TriggerCondition{}, conditionError(s)
	}
	return c, nil
}

func conditionError(s string) error {
	return &ConfigError{Code: ErrCodeCondition, Field: "condition", Message: fmt.Sprintf("invalid trigger condition %q, want A:B with 1 <= A <= B", s)}
}

// ConditionOptions lists the conditions offered for selection: every A:B
// with B up to NumSteps
var ConditionOptions = func() []TriggerCondition {
	var opts []TriggerCondition
	for b := 1; b <= NumSteps; b++ {
		for a := 1; a <= b; a++ {
			opts = append(opts, TriggerCondition{A: a, B: b})
		}
	}
	return opts
}()

// OutputMode selects what the sequencer sends
type OutputMode int

const (
	ForwardNote OutputMode = iota // gate incoming note-ons
	CC                            // 127 on open steps, 0 on closed
	InvertedCC                    // 127 on closed steps, 0 on open
)

var outputModeNames = []string{"Fwd host note", "CC", "CC inverted"}

func (m OutputMode) String() string {
	if m < 0 || int(m) >= len(outputModeNames) {
		return fmt.Sprintf("OutputMode(%d)", int(m))
	}
	return outputModeNames[m]
}

// ParseOutputMode accepts display names and "note", "cc", "cc-inverted"
func ParseOutputMode(s string) (OutputMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "note", "fwd host note", "forward":
		return ForwardNote, nil
	case "cc":
		return CC, nil
	case "cc-inverted", "cc inverted", "inverted":
		return InvertedCC, nil
	}
	return 0, &ConfigError{Code: ErrCodeMode, Field: "mode", Message: fmt.Sprintf("unknown output mode %q", s)}
}

// MarshalText implements encoding.TextMarshaler
func (m OutputMode) MarshalText() ([]byte, error) {
	switch m {
	case ForwardNote:
		return []byte("note"), nil
	case CC:
		return []byte("cc"), nil
	case InvertedCC:
		return []byte("cc-inverted"), nil
	}
	return nil, fmt.Errorf("unknown output mode %d", int(m))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *OutputMode) UnmarshalText(b []byte) error {
	mode, err := ParseOutputMode(string(b))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Step is the per-step configuration
type Step struct {
	Chance    int // percent chance the step opens, 0-100
	Condition TriggerCondition
}

// Config is everything the engine and transformer read per block. Treat a
// validated Config as immutable; Params hands out snapshots.
type Config struct {
	Steps      [NumSteps]Step
	StepLength StepLength
	Reset      int // cycle length in steps, 1..NumSteps
	Channel    int // output channel, 1-16
	Mode       OutputMode
	CCNumber   int // 0-127
	Latency    time.Duration
}

// DefaultConfig returns every step at 100% 1:1, sixteenth steps, reset 16,
// forwarding notes on channel 1
func DefaultConfig() Config {
	cfg := Config{
		StepLength: StepSixteenth,
		Reset:      NumSteps,
		Channel:    1,
		Mode:       ForwardNote,
		CCNumber:   0,
		Latency:    DefaultLatency,
	}
	for i := range cfg.Steps {
		cfg.Steps[i] = Step{Chance: 100, Condition: Always}
	}
	return cfg
}

// Validate reports every problem in the configuration. The engine only runs
// on configurations that pass.
func (c *Config) Validate() error {
	var err error
	for i, s := range c.Steps {
		if s.Chance < 0 || s.Chance > 100 {
			err = multierr.Append(err, &ConfigError{
				Code: ErrCodeChance, Field: fmt.Sprintf("steps[%d].chance", i),
				Message: fmt.Sprintf("chance %d outside 0-100", s.Chance),
			})
		}
		if !s.Condition.Valid() {
			err = multierr.Append(err, &ConfigError{
				Code: ErrCodeCondition, Field: fmt.Sprintf("steps[%d].condition", i),
				Message: fmt.Sprintf("invalid trigger condition %s, want 1 <= A <= B", s.Condition),
			})
		}
	}
	if _, ok := c.StepLength.StepsPerQuarter(); !ok {
		err = multierr.Append(err, &ConfigError{
			Code: ErrCodeStepLength, Field: "step_length",
			Message: fmt.Sprintf("unknown step length %q", c.StepLength),
		})
	}
	if c.Reset < 1 || c.Reset > NumSteps {
		err = multierr.Append(err, &ConfigError{
			Code: ErrCodeReset, Field: "reset",
			Message: fmt.Sprintf("reset %d outside 1-%d", c.Reset, NumSteps),
		})
	}
	if c.Channel < 1 || c.Channel > 16 {
		err = multierr.Append(err, &ConfigError{
			Code: ErrCodeChannel, Field: "channel",
			Message: fmt.Sprintf("channel %d outside 1-16", c.Channel),
		})
	}
	if c.CCNumber < 0 || c.CCNumber > 127 {
		err = multierr.Append(err, &ConfigError{
			Code: ErrCodeCCNumber, Field: "cc",
			Message: fmt.Sprintf("CC number %d outside 0-127", c.CCNumber),
		})
	}
	if c.Mode < ForwardNote || c.Mode > InvertedCC {
		err = multierr.Append(err, &ConfigError{
			Code: ErrCodeMode, Field: "mode",
			Message: fmt.Sprintf("unknown output mode %d", int(c.Mode)),
		})
	}
	if c.Latency < 0 || c.Latency > time.Second {
		err = multierr.Append(err, &ConfigError{
			Code: ErrCodeLatency, Field: "latency",
			Message: fmt.Sprintf("latency %s outside 0-1s", c.Latency),
		})
	}
	return err
}
