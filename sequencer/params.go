package sequencer

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Params holds the live configuration. Writers validate a modified copy and
// swap it in; the audio path reads the current snapshot without locking.
type Params struct {
	mu      sync.Mutex
	cur     atomic.Pointer[Config]
	changed chan struct{}
}

// NewParams validates cfg and makes it the live configuration
func NewParams(cfg Config) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Params{changed: make(chan struct{}, 1)}
	p.cur.Store(&cfg)
	return p, nil
}

// Snapshot returns the live configuration. Do not modify it.
func (p *Params) Snapshot() *Config {
	return p.cur.Load()
}

// Changed signals (coalesced) after each successful update
func (p *Params) Changed() <-chan struct{} {
	return p.changed
}

// Update applies fn to a copy of the live configuration and publishes it if
// it validates. On error the live configuration is unchanged.
func (p *Params) Update(fn func(*Config)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := *p.cur.Load()
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	p.cur.Store(&next)

	select {
	case p.changed <- struct{}{}:
	default:
	}
	return nil
}

// Replace publishes cfg as a whole
func (p *Params) Replace(cfg Config) error {
	return p.Update(func(c *Config) { *c = cfg })
}

func (p *Params) SetChance(step, percent int) error {
	if err := checkStep(step); err != nil {
		return err
	}
	return p.Update(func(c *Config) { c.Steps[step].Chance = percent })
}

// SetCondition parses "A:B" text for one step
func (p *Params) SetCondition(step int, text string) error {
	if err := checkStep(step); err != nil {
		return err
	}
	cond, err := ParseCondition(text)
	if err != nil {
		return err
	}
	return p.Update(func(c *Config) { c.Steps[step].Condition = cond })
}

func (p *Params) SetStepLength(name string) error {
	l, err := ParseStepLength(name)
	if err != nil {
		return err
	}
	return p.Update(func(c *Config) { c.StepLength = l })
}

func (p *Params) SetReset(n int) error {
	return p.Update(func(c *Config) { c.Reset = n })
}

func (p *Params) SetMode(m OutputMode) error {
	return p.Update(func(c *Config) { c.Mode = m })
}

func (p *Params) SetCCNumber(n int) error {
	return p.Update(func(c *Config) { c.CCNumber = n })
}

func (p *Params) SetChannel(n int) error {
	return p.Update(func(c *Config) { c.Channel = n })
}

func checkStep(step int) error {
	if step < 0 || step >= NumSteps {
		return &ConfigError{Code: ErrCodeStepIndex, Field: "step", Message: fmt.Sprintf("step %d outside 0-%d", step, NumSteps-1)}
	}
	return nil
}
