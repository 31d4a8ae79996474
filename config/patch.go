package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"chance-machine/sequencer"
)

// StepPatch is one step in a patch file
type StepPatch struct {
	Chance    *int   `yaml:"chance,omitempty"`
	Condition string `yaml:"condition,omitempty"`
}

// Patch is a YAML description of the sequencer parameters. Fields left out
// keep the values of the configuration the patch is applied to.
type Patch struct {
	Name       string      `yaml:"name,omitempty"`
	Steps      []StepPatch `yaml:"steps,omitempty"`
	StepLength string      `yaml:"step_length,omitempty"`
	Reset      int         `yaml:"reset,omitempty"`
	Mode       string      `yaml:"mode,omitempty"`
	CC         *int        `yaml:"cc,omitempty"`
	Channel    int         `yaml:"channel,omitempty"`
	LatencyMs  *int        `yaml:"latency_ms,omitempty"`
}

// LoadPatch reads a patch file
func LoadPatch(path string) (*Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patch: %w", err)
	}
	return ParsePatch(data)
}

// ParsePatch decodes patch YAML, rejecting unknown keys
func ParsePatch(data []byte) (*Patch, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Patch
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse patch: %w", err)
	}
	if len(p.Steps) > sequencer.NumSteps {
		return nil, fmt.Errorf("parse patch: %d steps, at most %d", len(p.Steps), sequencer.NumSteps)
	}
	return &p, nil
}

// Apply returns base with the patch's values and validates the result
func (p *Patch) Apply(base sequencer.Config) (sequencer.Config, error) {
	cfg := base

	for i, s := range p.Steps {
		if s.Chance != nil {
			cfg.Steps[i].Chance = *s.Chance
		}
		if s.Condition != "" {
			cond, err := sequencer.ParseCondition(s.Condition)
			if err != nil {
				return base, fmt.Errorf("step %d: %w", i+1, err)
			}
			cfg.Steps[i].Condition = cond
		}
	}
	if p.StepLength != "" {
		l, err := sequencer.ParseStepLength(p.StepLength)
		if err != nil {
			return base, err
		}
		cfg.StepLength = l
	}
	if p.Reset != 0 {
		cfg.Reset = p.Reset
	}
	if p.Mode != "" {
		m, err := sequencer.ParseOutputMode(p.Mode)
		if err != nil {
			return base, err
		}
		cfg.Mode = m
	}
	if p.CC != nil {
		cfg.CCNumber = *p.CC
	}
	if p.Channel != 0 {
		cfg.Channel = p.Channel
	}
	if p.LatencyMs != nil {
		cfg.Latency = time.Duration(*p.LatencyMs) * time.Millisecond
	}

	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// PatchFromConfig describes cfg completely as a patch
func PatchFromConfig(name string, cfg sequencer.Config) *Patch {
	mode, _ := cfg.Mode.MarshalText()
	cc := cfg.CCNumber
	latency := int(cfg.Latency / time.Millisecond)

	p := &Patch{
		Name:       name,
		StepLength: string(cfg.StepLength),
		Reset:      cfg.Reset,
		Mode:       string(mode),
		CC:         &cc,
		Channel:    cfg.Channel,
		LatencyMs:  &latency,
	}
	for _, s := range cfg.Steps {
		chance := s.Chance
		p.Steps = append(p.Steps, StepPatch{Chance: &chance, Condition: s.Condition.String()})
	}
	return p
}

// Marshal encodes the patch as YAML
func (p *Patch) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the patch to path
func (p *Patch) Save(path string) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
