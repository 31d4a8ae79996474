package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chance-machine/sequencer"
)

const twoOfFour = `
name: two of four
step_length: 1/8
reset: 4
mode: cc-inverted
cc: 74
channel: 10
latency_ms: 5
steps:
  - chance: 0
  - {}
  - chance: 100
    condition: "2:4"
`

func TestParsePatch_Apply(t *testing.T) {
	p, err := ParsePatch([]byte(twoOfFour))
	require.NoError(t, err)
	assert.Equal(t, "two of four", p.Name)

	cfg, err := p.Apply(sequencer.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, sequencer.StepEighth, cfg.StepLength)
	assert.Equal(t, 4, cfg.Reset)
	assert.Equal(t, sequencer.InvertedCC, cfg.Mode)
	assert.Equal(t, 74, cfg.CCNumber)
	assert.Equal(t, 10, cfg.Channel)
	assert.Equal(t, 5*time.Millisecond, cfg.Latency)
	assert.Equal(t, 0, cfg.Steps[0].Chance)
	assert.Equal(t, sequencer.Step{Chance: 100, Condition: sequencer.Always}, cfg.Steps[1], "empty step keeps base")
	assert.Equal(t, sequencer.Step{Chance: 100, Condition: sequencer.TriggerCondition{A: 2, B: 4}}, cfg.Steps[2])
	assert.Equal(t, 100, cfg.Steps[15].Chance)
}

func TestParsePatch_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key":    "tempo: 120\n",
		"not yaml":       "steps: [\n",
		"too many steps": "steps: [{}, {}, {}, {}, {}, {}, {}, {}, {}, {}, {}, {}, {}, {}, {}, {}, {}]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePatch([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApply_InvalidKeepsBase(t *testing.T) {
	base := sequencer.DefaultConfig()
	for name, doc := range map[string]string{
		"condition":   "steps:\n  - condition: \"5:4\"\n",
		"step length": "step_length: 1/32\n",
		"mode":        "mode: arp\n",
		"channel":     "channel: 17\n",
		"chance":      "steps:\n  - chance: 150\n",
	} {
		t.Run(name, func(t *testing.T) {
			p, err := ParsePatch([]byte(doc))
			require.NoError(t, err)
			got, err := p.Apply(base)
			assert.Error(t, err)
			assert.Equal(t, base, got)
		})
	}
}

func TestPatch_SaveLoadRoundTrip(t *testing.T) {
	cfg := sequencer.DefaultConfig()
	cfg.Steps[7] = sequencer.Step{Chance: 33, Condition: sequencer.TriggerCondition{A: 3, B: 5}}
	cfg.Mode = sequencer.CC
	cfg.CCNumber = 0

	path := filepath.Join(t.TempDir(), "patch.yaml")
	require.NoError(t, PatchFromConfig("saved", cfg).Save(path))

	p, err := LoadPatch(path)
	require.NoError(t, err)
	got, err := p.Apply(sequencer.Config{})
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
