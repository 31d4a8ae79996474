package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chance-machine/config"
	"chance-machine/host"
	"chance-machine/midi"
	"chance-machine/sequencer"
)

type stubPort struct{}

func (stubPort) Send([]byte) error { return nil }
func (stubPort) Close() error      { return nil }

type stubSystem struct {
	ports []midi.PortInfo
	hang  chan struct{}
}

func (s *stubSystem) Outputs() ([]midi.PortInfo, error) {
	if s.hang != nil {
		<-s.hang
	}
	return s.ports, nil
}

func (s *stubSystem) OpenOutput(string) (midi.Port, error) { return stubPort{}, nil }

func TestListPorts(t *testing.T) {
	var buf bytes.Buffer
	sys := &stubSystem{ports: []midi.PortInfo{{ID: "Synth", Name: "Synth"}, {ID: "Synth #2", Name: "Synth"}}}
	require.NoError(t, listPorts(&buf, sys, time.Second))
	assert.Equal(t, "=== MIDI Output Ports ===\n  0: Synth\n  1: Synth #2\n", buf.String())
}

func TestListPorts_Timeout(t *testing.T) {
	sys := &stubSystem{hang: make(chan struct{})}
	defer close(sys.hang)
	err := listPorts(&bytes.Buffer{}, sys, 10*time.Millisecond)
	assert.ErrorContains(t, err, "timed out")
}

func TestPollOutputs_PrintsEvents(t *testing.T) {
	sys := &stubSystem{ports: []midi.PortInfo{{ID: "Synth", Name: "Synth"}}}
	reg := midi.NewRegistry(sys)
	t.Cleanup(reg.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	require.NoError(t, pollOutputs(ctx, &buf, reg, 10*time.Millisecond))
	assert.Contains(t, buf.String(), "connected: Synth")
}

func TestBuildParams_AppliesPatchAndLatency(t *testing.T) {
	dir := t.TempDir()
	patch := filepath.Join(dir, "p.yaml")
	require.NoError(t, os.WriteFile(patch, []byte("reset: 4\nmode: cc\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.Audio.LatencyMs = 20
	params, err := buildParams(cfg, patch)
	require.NoError(t, err)

	got := params.Snapshot()
	assert.Equal(t, 4, got.Reset)
	assert.Equal(t, sequencer.CC, got.Mode)
	assert.Equal(t, 20*time.Millisecond, got.Latency)
}

func TestBuildParams_BadPatch(t *testing.T) {
	patch := filepath.Join(t.TempDir(), "p.yaml")
	require.NoError(t, os.WriteFile(patch, []byte("reset: 0\nchannel: 40\n"), 0o644))
	_, err := buildParams(config.DefaultConfig(), patch)
	assert.Error(t, err)
}

func TestSaveRestoreCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	statePath := filepath.Join(dir, "state.json")
	patchPath := filepath.Join(dir, "p.yaml")
	patchOut := filepath.Join(dir, "restored.yaml")

	cfg := config.DefaultConfig()
	cfg.Output.Selected = "DeviceA"
	require.NoError(t, cfg.SaveTo(cfgPath))
	require.NoError(t, os.WriteFile(patchPath, []byte("steps:\n  - chance: 40\n    condition: \"2:4\"\n"), 0o644))

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute(), out.String())
		return out.String()
	}

	run("save", "--config", cfgPath, "--patch", patchPath, "-o", statePath)
	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"savedMIDIId": "DeviceA"`)

	// point the config somewhere else, then restore from the file
	cfg.Output.Selected = "Other"
	require.NoError(t, cfg.SaveTo(cfgPath))
	out := run("restore", statePath, "--config", cfgPath, "--patch-out", patchOut)
	assert.True(t, strings.Contains(out, `"DeviceA"`), out)

	restored, err := config.LoadFrom(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "DeviceA", restored.Output.Selected)
	assert.Equal(t, patchOut, restored.Patch)

	p, err := config.LoadPatch(patchOut)
	require.NoError(t, err)
	seq, err := p.Apply(sequencer.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, sequencer.Step{Chance: 40, Condition: sequencer.TriggerCondition{A: 2, B: 4}}, seq.Steps[0])
}

func TestStartWorkers_StopWaitsForExit(t *testing.T) {
	var exited atomic.Int32
	worker := func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		exited.Add(1)
	}

	stop := startWorkers(context.Background(), worker, worker)
	stop()
	assert.Equal(t, int32(2), exited.Load())
}

func TestStartWorkers_WatcherAndHostDoneBeforeClose(t *testing.T) {
	sys := &stubSystem{ports: []midi.PortInfo{{ID: "Synth", Name: "Synth"}}}
	reg := midi.NewRegistry(sys)
	require.NoError(t, reg.Select("Synth"))

	params, err := sequencer.NewParams(sequencer.DefaultConfig())
	require.NoError(t, err)
	h := host.New(sequencer.NewProcessor(params, midi.NewRouter(reg)), host.DefaultOptions())
	h.Play()

	stop := startWorkers(context.Background(),
		midi.NewWatcher(reg, midi.WithPollRate(5*time.Millisecond)).Run,
		h.Run,
	)
	require.Eventually(t, func() bool { return reg.OpenCount() == 1 && h.Blocks() > 2 }, 2*time.Second, 5*time.Millisecond)
	stop()

	blocks := h.Blocks()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, blocks, h.Blocks(), "no block runs after stop returns")
	assert.Equal(t, 0, reg.OpenCount())
}

func TestSelection(t *testing.T) {
	sel := selection("a")
	var s sequencer.Selector = &sel
	require.NoError(t, s.Select("b"))
	assert.Equal(t, "b", s.Selected())
}
