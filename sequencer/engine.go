package sequencer

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand/v2"

	"chance-machine/internal/check"
)

// State is the engine's memory between blocks. It is never persisted; a
// fresh engine recomputes it from the transport.
type State struct {
	PreviousAbsoluteStep int64
	CurrentStep          int
	GateOpen             bool
}

// Result is the engine's decision for one block
type Result struct {
	Step     int   // index in [0, Reset)
	Cycle    int64 // completed passes through Reset steps
	Absolute int64 // steps since position 0
	Changed  bool  // a step boundary was crossed since the previous call
	GateOpen bool
}

// StepEvent is published on every step boundary
type StepEvent struct {
	Step     int
	Cycle    int64
	GateOpen bool
}

// noStep makes the first Process call always see an edge
const noStep = math.MinInt64

// Engine maps transport positions to steps and decides each step's gate
// exactly once. Process must be called from a single goroutine.
type Engine struct {
	state State
	rng   *rand.Rand
	steps chan StepEvent
}

// NewEngine creates an engine with a randomly seeded generator
func NewEngine() *Engine {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		binary.LittleEndian.PutUint64(seed[:], rand.Uint64())
	}
	return NewEngineWithSource(rand.NewChaCha8(seed))
}

// NewEngineWithSource creates an engine drawing from src
func NewEngineWithSource(src rand.Source) *Engine {
	e := &Engine{
		rng:   rand.New(src),
		steps: make(chan StepEvent, 16),
	}
	e.Reset()
	return e
}

// StepEvents delivers step boundaries. Events are dropped when the reader
// falls behind.
func (e *Engine) StepEvents() <-chan StepEvent {
	return e.steps
}

// State returns the current engine state
func (e *Engine) State() State {
	return e.state
}

// Reset forgets the previous step so the next call re-decides the gate.
// Like Process it must run on the block goroutine.
func (e *Engine) Reset() {
	e.state = State{PreviousAbsoluteStep: noStep}
}

// Process advances the engine to the transport position. cfg must have
// passed Validate.
func (e *Engine) Process(t *Transport, cfg *Config) Result {
	tr := t.resolve()

	perQuarter, ok := cfg.StepLength.StepsPerQuarter()
	check.Assertf(ok && cfg.Reset > 0, "Engine.Process: unvalidated config (step length %q, reset %d)", cfg.StepLength, cfg.Reset)
	if !ok || cfg.Reset <= 0 {
		return Result{Step: e.state.CurrentStep, GateOpen: e.state.GateOpen, Absolute: e.state.PreviousAbsoluteStep}
	}

	beatsPerSecond := tr.Tempo / 60
	compensated := tr.PositionQN + cfg.Latency.Seconds()*beatsPerSecond
	absolute := int64(math.Floor(compensated * perQuarter))

	reset := int64(cfg.Reset)
	step := int(floorMod(absolute, reset))
	cycle := floorDiv(absolute, reset)

	res := Result{Step: step, Cycle: cycle, Absolute: absolute}
	if absolute == e.state.PreviousAbsoluteStep {
		res.GateOpen = e.state.GateOpen
		return res
	}

	s := cfg.Steps[step]
	satisfied := s.Condition.Matches(cycle)
	draw := e.rng.IntN(100)
	gate := satisfied && s.Chance > draw

	e.state = State{PreviousAbsoluteStep: absolute, CurrentStep: step, GateOpen: gate}
	res.Changed = true
	res.GateOpen = gate

	select {
	case e.steps <- StepEvent{Step: step, Cycle: cycle, GateOpen: gate}:
	default:
	}
	return res
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}
