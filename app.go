package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"chance-machine/config"
	"chance-machine/debug"
	"chance-machine/host"
	"chance-machine/midi"
	"chance-machine/sequencer"
	"chance-machine/theme"
	"chance-machine/tui"
)

// app wires the processor, the output registry and the simulated host
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	system  *midi.DriverSystem
	reg     *midi.Registry
	watcher *midi.Watcher
	proc    *sequencer.Processor
	host    *host.Host
	input   *midi.Input
	hostOut midi.Port
}

func loadConfig(opts *options) (*config.Config, error) {
	if opts.configPath != "" {
		return config.LoadFrom(opts.configPath)
	}
	return config.Load()
}

// buildParams resolves the sequencer configuration from the app config and
// an optional patch file
func buildParams(cfg *config.Config, patchPath string) (*sequencer.Params, error) {
	seq := sequencer.DefaultConfig()
	seq.Latency = time.Duration(cfg.Audio.LatencyMs) * time.Millisecond

	if patchPath == "" {
		patchPath = cfg.Patch
	}
	if patchPath != "" {
		p, err := config.LoadPatch(patchPath)
		if err != nil {
			return nil, err
		}
		if seq, err = p.Apply(seq); err != nil {
			return nil, fmt.Errorf("patch %s: %w", patchPath, err)
		}
	}
	return sequencer.NewParams(seq)
}

func newApp(opts *options) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := debug.Logger()

	params, err := buildParams(cfg, opts.patchPath)
	if err != nil {
		return nil, err
	}

	system, err := midi.NewDriverSystem()
	if err != nil {
		return nil, err
	}

	reg := midi.NewRegistry(system, midi.WithLogger(log.Named("registry")))
	a := &app{
		cfg:     cfg,
		log:     log,
		system:  system,
		reg:     reg,
		watcher: midi.NewWatcher(reg, midi.WithWatcherLogger(log.Named("watcher"))),
	}
	a.proc = sequencer.NewProcessor(params, midi.NewRouter(reg), sequencer.WithProcessorLogger(log.Named("processor")))

	tempo := cfg.UI.LastTempo
	if opts.tempo > 0 {
		tempo = opts.tempo
	}
	a.host = host.New(a.proc, host.Options{
		SampleRate: cfg.Audio.SampleRate,
		BlockSize:  cfg.Audio.BlockSize,
		Tempo:      float64(tempo),
		Log:        log.Named("host"),
	})

	if _, err := reg.Refresh(); err != nil {
		log.Warn("initial output scan failed", zap.Error(err))
	}
	a.restoreSelection(opts)

	if err := a.openHostPorts(opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// restoreSelection applies saved state if there is one, otherwise the
// configured output. A command line output wins over both.
func (a *app) restoreSelection(opts *options) {
	statePath := opts.statePath
	if statePath == "" {
		statePath = a.cfg.State
	}

	restored := false
	if statePath != "" {
		data, err := os.ReadFile(statePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			a.proc.SetStatus(fmt.Sprintf("Could not read state: %v", err))
		default:
			if err := a.proc.RestoreState(data, a.reg); err != nil {
				a.log.Warn("state not restored", zap.String("path", statePath), zap.Error(err))
				a.proc.SetStatus(fmt.Sprintf("State not restored: %v", err))
			} else {
				restored = true
			}
		}
	}

	selected := a.cfg.Output.Selected
	if opts.output != "" {
		selected = opts.output
	} else if restored {
		return
	}
	if err := a.reg.Select(selected); err != nil {
		a.proc.SetStatus(fmt.Sprintf("Could not open %s: %v", selected, err))
	}
}

func (a *app) openHostPorts(opts *options) error {
	inName := a.cfg.Input.PortName
	if opts.input != "" {
		inName = opts.input
	}
	if inName != "" && (a.cfg.Input.AutoConnect || opts.input != "") {
		in, err := midi.OpenInput(a.system.Driver(), inName)
		if err != nil {
			if opts.input != "" {
				return err
			}
			a.log.Warn("input not opened", zap.String("port", inName), zap.Error(err))
		} else {
			a.input = in
			a.host.SetInput(in)
		}
	}

	outName := a.cfg.Output.HostPort
	if opts.hostOut != "" {
		outName = opts.hostOut
	}
	if outName != "" {
		out, err := a.system.OpenOutput(outName)
		if err != nil {
			return fmt.Errorf("host output: %w", err)
		}
		q := midi.NewQueuedPort(outName, out, a.log.Named("host-out"))
		a.hostOut = q
		a.host.SetOutput(q)
	}
	return nil
}

func (a *app) saveState(path string) error {
	if path == "" {
		return errors.New("no state file configured (use --state)")
	}
	data, err := a.proc.SaveState(a.reg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (a *app) close() {
	a.reg.Shutdown()
	if a.input != nil {
		a.input.Close()
	}
	if a.hostOut != nil {
		a.hostOut.Close()
	}
	if err := a.system.Close(); err != nil {
		a.log.Warn("close MIDI driver", zap.Error(err))
	}
}

// startWorkers runs each worker in its own goroutine. The returned stop
// cancels them and returns once all of them have exited.
func startWorkers(ctx context.Context, workers ...func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w(ctx)
		}()
	}
	return func() {
		cancel()
		wg.Wait()
	}
}

func runApp(ctx context.Context, opts *options) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ports are closed only once nothing scans or processes blocks
	stop := startWorkers(ctx, a.watcher.Run, a.host.Run)
	defer func() {
		stop()
		a.close()
	}()

	palette, err := theme.LoadOrDefault(a.cfg.UI.Palette)
	if err != nil {
		a.log.Warn("palette not loaded, using default", zap.Error(err))
		palette = theme.DefaultPalette()
	}

	statePath := opts.statePath
	if statePath == "" {
		statePath = a.cfg.State
	}

	m := tui.NewModel(a.host, a.reg, theme.New(palette))
	m.SaveState = func() error { return a.saveState(statePath) }

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	cancel()

	_, _, tempo := a.host.GetState()
	a.cfg.UI.LastTempo = tempo
	a.cfg.Output.Selected = a.reg.Selected()
	if opts.configPath != "" {
		return a.cfg.SaveTo(opts.configPath)
	}
	return a.cfg.Save()
}
