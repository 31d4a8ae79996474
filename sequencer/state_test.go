package sequencer

import (
	"errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSelector struct {
	selected string
	err      error
	calls    int
}

func (s *fakeSelector) Selected() string { return s.selected }

func (s *fakeSelector) Select(id string) error {
	s.calls++
	s.selected = id
	return s.err
}

func TestSaveState_Golden(t *testing.T) {
	p := newTestProcessor(t, DefaultConfig(), nil)
	data, err := p.SaveState(&fakeSelector{selected: "DeviceA"})
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "saved_state", data)
}

func TestRestoreState_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steps[2] = Step{Chance: 55, Condition: TriggerCondition{2, 4}}
	cfg.Reset = 8
	cfg.Mode = InvertedCC
	cfg.CCNumber = 74
	cfg.Channel = 10
	cfg.StepLength = StepEighth
	src := newTestProcessor(t, cfg, nil)

	data, err := src.SaveState(&fakeSelector{selected: "DeviceA"})
	require.NoError(t, err)

	dst := newTestProcessor(t, DefaultConfig(), nil)
	sel := &fakeSelector{}
	require.NoError(t, dst.RestoreState(data, sel))

	assert.Equal(t, "DeviceA", sel.Selected())
	assert.Equal(t, *src.Params().Snapshot(), *dst.Params().Snapshot())
}

func TestRestoreState_RejectsWithoutApplying(t *testing.T) {
	good, err := newTestProcessor(t, DefaultConfig(), nil).SaveState(&fakeSelector{selected: "DeviceA"})
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
		want error
	}{
		{"version mismatch", strings.Replace(string(good), `"0.2i"`, `"0.1"`, 1), ErrVersionMismatch},
		{"no version", strings.Replace(string(good), `"version": "0.2i",`, ``, 1), ErrMalformedState},
		{"not json", "<xml/>", ErrMalformedState},
		{"missing selection", strings.Replace(string(good), `"savedMIDIId": "DeviceA",`, ``, 1), ErrMalformedState},
		{"bad condition", strings.Replace(string(good), `"1:1"`, `"3:2"`, 1), ErrMalformedState},
		{"bad reset", strings.Replace(string(good), `"reset": 16`, `"reset": 0`, 1), ErrMalformedState},
		{"bad mode", strings.Replace(string(good), `"note"`, `"arp"`, 1), ErrMalformedState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Reset = 5
			p := newTestProcessor(t, cfg, nil)
			before := p.Params().Snapshot()
			sel := &fakeSelector{selected: "Previous"}

			err := p.RestoreState([]byte(tt.data), sel)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Same(t, before, p.Params().Snapshot())
			assert.Equal(t, "Previous", sel.Selected())
			assert.Zero(t, sel.calls)
		})
	}
}

func TestRestoreState_OpenFailureIsNotFatal(t *testing.T) {
	data, err := newTestProcessor(t, DefaultConfig(), nil).SaveState(&fakeSelector{selected: "Gone"})
	require.NoError(t, err)

	p := newTestProcessor(t, DefaultConfig(), nil)
	sel := &fakeSelector{err: errors.New("device busy")}
	require.NoError(t, p.RestoreState(data, sel))
	assert.Equal(t, "Gone", sel.Selected())
	assert.Contains(t, p.Status(), "Gone")
}

func TestRestoreState_EmptySelection(t *testing.T) {
	data, err := newTestProcessor(t, DefaultConfig(), nil).SaveState(&fakeSelector{})
	require.NoError(t, err)

	sel := &fakeSelector{selected: "DeviceA"}
	require.NoError(t, newTestProcessor(t, DefaultConfig(), nil).RestoreState(data, sel))
	assert.Equal(t, "", sel.Selected())
}
