package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"chance-machine/config"
	"chance-machine/debug"
	"chance-machine/midi"
	"chance-machine/sequencer"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List MIDI inputs and outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			system, err := midi.NewDriverSystem()
			if err != nil {
				return err
			}
			defer system.Close()
			return listPorts(cmd.OutOrStdout(), system, midi.DefaultScanTimeout)
		},
	}
}

// listPorts prints inputs (when the system has a driver) and outputs,
// giving up if enumeration hangs
func listPorts(w io.Writer, system midi.System, timeout time.Duration) error {
	type result struct {
		ins  []midi.PortInfo
		outs []midi.PortInfo
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		var r result
		if ds, ok := system.(*midi.DriverSystem); ok {
			r.ins, r.err = midi.ListInputs(ds.Driver())
		}
		if r.err == nil {
			r.outs, r.err = system.Outputs()
		}
		ch <- r
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if r.ins != nil {
			fmt.Fprintln(w, "=== MIDI Input Ports ===")
			for i, p := range r.ins {
				fmt.Fprintf(w, "  %d: %s\n", i, p.Name)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, "=== MIDI Output Ports ===")
		if len(r.outs) == 0 {
			fmt.Fprintln(w, "  (none)")
		}
		for i, p := range r.outs {
			fmt.Fprintf(w, "  %d: %s\n", i, p.ID)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("MIDI enumeration timed out after %s", timeout)
	}
}

func newPollCmd() *cobra.Command {
	var rate time.Duration
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Watch MIDI outputs appear and disappear",
		RunE: func(cmd *cobra.Command, args []string) error {
			system, err := midi.NewDriverSystem()
			if err != nil {
				return err
			}
			defer system.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			fmt.Fprintf(cmd.OutOrStdout(), "Polling outputs every %s. Ctrl+C to exit.\n", rate)
			reg := midi.NewRegistry(system, midi.WithLogger(debug.Logger().Named("registry")))
			return pollOutputs(ctx, cmd.OutOrStdout(), reg, rate)
		},
	}
	cmd.Flags().DurationVar(&rate, "rate", midi.DefaultPollRate, "poll interval")
	return cmd
}

// pollOutputs runs a watcher and prints every device event until ctx ends
func pollOutputs(ctx context.Context, w io.Writer, reg *midi.Registry, rate time.Duration) error {
	go midi.NewWatcher(reg, midi.WithPollRate(rate)).Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-reg.Events():
			fmt.Fprintf(w, "[%s] %s: %s\n", time.Now().Format("15:04:05"), ev.Type, ev.Port.ID)
		}
	}
}

func newSaveCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Write a saved state file from the config and patch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			params, err := buildParams(cfg, opts.patchPath)
			if err != nil {
				return err
			}
			sel := selection(cfg.Output.Selected)
			data, err := sequencer.NewProcessor(params, nil).SaveState(&sel)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newRestoreCmd(opts *options) *cobra.Command {
	var patchOut string
	cmd := &cobra.Command{
		Use:   "restore <state-file>",
		Short: "Apply a saved state file to the config (and optionally a patch file)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			params, err := buildParams(cfg, opts.patchPath)
			if err != nil {
				return err
			}

			sel := selection(cfg.Output.Selected)
			if err := sequencer.NewProcessor(params, nil).RestoreState(data, &sel); err != nil {
				return err
			}

			cfg.Output.Selected = string(sel)
			fmt.Fprintf(cmd.OutOrStdout(), "selected output: %q\n", cfg.Output.Selected)

			if patchOut != "" {
				if err := config.PatchFromConfig(args[0], *params.Snapshot()).Save(patchOut); err != nil {
					return err
				}
				cfg.Patch = patchOut
			}
			if opts.configPath != "" {
				return cfg.SaveTo(opts.configPath)
			}
			return cfg.Save()
		},
	}
	cmd.Flags().StringVar(&patchOut, "patch-out", "", "write the restored parameters as a YAML patch")
	return cmd
}

// selection is an output selection that is only recorded, never opened
type selection string

func (s selection) Selected() string { return string(s) }

func (s *selection) Select(id string) error {
	*s = selection(id)
	return nil
}
