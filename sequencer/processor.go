package sequencer

import (
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chance-machine/midi"
)

// Processor runs one instance of the sequencer: per block it asks the engine
// for the step decision and lets the transformer build the outgoing events.
type Processor struct {
	id          uuid.UUID
	params      *Params
	engine      *Engine
	transformer *Transformer
	log         *zap.Logger

	out     midi.Buffer
	status  atomic.Pointer[string]
	restart atomic.Bool
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithEngine replaces the default randomly seeded engine
func WithEngine(e *Engine) ProcessorOption {
	return func(p *Processor) {
		p.engine = e
	}
}

// WithInstanceID fixes the instance id (used in logs and saved state)
func WithInstanceID(id uuid.UUID) ProcessorOption {
	return func(p *Processor) {
		p.id = id
	}
}

// WithProcessorLogger sets the logger used outside the block path
func WithProcessorLogger(l *zap.Logger) ProcessorOption {
	return func(p *Processor) {
		p.log = l
	}
}

// NewProcessor creates a processor reading params and sending external
// events to sink (nil for none)
func NewProcessor(params *Params, sink Sink, opts ...ProcessorOption) *Processor {
	p := &Processor{
		id:          uuid.New(),
		params:      params,
		transformer: NewTransformer(sink),
		log:         zap.NewNop(),
		out:         make(midi.Buffer, 0, 64),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.engine == nil {
		p.engine = NewEngine()
	}
	p.log = p.log.With(zap.String("instance", p.id.String()))
	p.SetStatus("")
	return p
}

func (p *Processor) ID() uuid.UUID {
	return p.id
}

func (p *Processor) Params() *Params {
	return p.params
}

// StepEvents delivers step boundaries for display
func (p *Processor) StepEvents() <-chan StepEvent {
	return p.engine.StepEvents()
}

// ProcessBlock handles one audio block. The returned buffer is reused by
// the next call.
func (p *Processor) ProcessBlock(t *Transport, in midi.Buffer) (midi.Buffer, Result) {
	if p.restart.Swap(false) {
		p.engine.Reset()
	}
	cfg := p.params.Snapshot()
	res := p.engine.Process(t, cfg)
	p.out = p.transformer.Transform(in, res, cfg, p.out)
	return p.out, res
}

// Restart makes the next block re-decide its step, as on transport start.
// It is safe to call while another goroutine is running blocks: the engine
// is reset by the next ProcessBlock call.
func (p *Processor) Restart() {
	p.restart.Store(true)
}

// SetStatus sets the passive status message shown to the user
func (p *Processor) SetStatus(msg string) {
	p.status.Store(&msg)
}

// Status returns the current status message
func (p *Processor) Status() string {
	return *p.status.Load()
}
