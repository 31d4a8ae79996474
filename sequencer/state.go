package sequencer

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StateVersion marks the saved state layout. Restores only accept a state
// carrying the same marker.
const StateVersion = "0.2i"

// SavedState is the persisted form of an instance
type SavedState struct {
	Version     string       `json:"version"`
	Instance    string       `json:"instance,omitempty"`
	SavedMIDIID *string      `json:"savedMIDIId"`
	Params      *SavedParams `json:"params"`
}

// SavedParams mirrors Config with text values
type SavedParams struct {
	Chance     [NumSteps]int    `json:"chance"`
	Condition  [NumSteps]string `json:"condition"`
	StepLength string           `json:"stepLength"`
	Reset      int              `json:"reset"`
	SendOut    OutputMode       `json:"sendOut"`
	CC         int              `json:"CC"`
	Channel    int              `json:"channel"`
}

// Selector is the output selection that is persisted with the state
type Selector interface {
	Selected() string
	Select(id string) error
}

// SaveState encodes the live configuration and the selected output
func (p *Processor) SaveState(sel Selector) ([]byte, error) {
	cfg := p.params.Snapshot()

	var selected string
	if sel != nil {
		selected = sel.Selected()
	}

	sp := &SavedParams{
		StepLength: string(cfg.StepLength),
		Reset:      cfg.Reset,
		SendOut:    cfg.Mode,
		CC:         cfg.CCNumber,
		Channel:    cfg.Channel,
	}
	for i, s := range cfg.Steps {
		sp.Chance[i] = s.Chance
		sp.Condition[i] = s.Condition.String()
	}

	data, err := json.MarshalIndent(SavedState{
		Version:     StateVersion,
		Instance:    p.id.String(),
		SavedMIDIID: &selected,
		Params:      sp,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// RestoreState applies a saved state. Any problem with the document skips
// the restore entirely. A saved output that cannot be opened right now is
// not an error: the selection is kept and opens when the output appears.
func (p *Processor) RestoreState(data []byte, sel Selector) error {
	var st SavedState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if st.Version == "" {
		return fmt.Errorf("%w: missing version", ErrMalformedState)
	}
	if st.Version != StateVersion {
		return fmt.Errorf("%w: got %q, want %q", ErrVersionMismatch, st.Version, StateVersion)
	}
	if st.Params == nil || st.SavedMIDIID == nil {
		return fmt.Errorf("%w: missing fields", ErrMalformedState)
	}

	cfg, err := st.Params.config(p.params.Snapshot().Latency)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if err := p.params.Replace(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	p.engine.Reset()
	p.log.Info("state restored", zap.String("savedMIDIId", *st.SavedMIDIID))

	if sel == nil {
		return nil
	}
	if err := sel.Select(*st.SavedMIDIID); err != nil {
		p.log.Warn("restored output could not be opened", zap.String("port", *st.SavedMIDIID), zap.Error(err))
		p.SetStatus(fmt.Sprintf("Could not open %s", *st.SavedMIDIID))
	}
	return nil
}

func (sp *SavedParams) config(latency time.Duration) (Config, error) {
	l, err := ParseStepLength(sp.StepLength)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		StepLength: l,
		Reset:      sp.Reset,
		Channel:    sp.Channel,
		Mode:       sp.SendOut,
		CCNumber:   sp.CC,
		Latency:    latency,
	}
	for i := range cfg.Steps {
		cond, err := ParseCondition(sp.Condition[i])
		if err != nil {
			return Config{}, err
		}
		cfg.Steps[i] = Step{Chance: sp.Chance[i], Condition: cond}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
