package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chance-machine/debug"
)

type options struct {
	configPath string
	patchPath  string
	statePath  string
	output     string
	input      string
	hostOut    string
	tempo      int
	debug      bool
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "chance-machine",
		Short: "Probabilistic MIDI step gate",
		Long: `chance-machine gates incoming MIDI notes (or emits CCs) step by step.
Each of the 16 steps has a chance and an A:B trigger condition; the
result goes to the host output and to the selected external MIDI output.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.debug {
				return nil
			}
			if err := debug.Enable(); err != nil {
				return err
			}
			return debug.SetLevel(opts.logLevel)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			debug.Disable()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd.Context(), opts)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/chance-machine/config.json)")
	f.StringVar(&opts.patchPath, "patch", "", "YAML step patch to load")
	f.StringVar(&opts.statePath, "state", "", "saved state file to restore at start and write on save")
	f.BoolVar(&opts.debug, "debug", false, "write a debug log to "+debug.LogPath())
	f.StringVar(&opts.logLevel, "log-level", "debug", "debug log level (debug, info, warn, error)")

	cmd.Flags().StringVar(&opts.output, "output", "", "external MIDI output to select")
	cmd.Flags().StringVar(&opts.input, "input", "", "MIDI input feeding the host stream")
	cmd.Flags().StringVar(&opts.hostOut, "host-out", "", "MIDI output receiving the host stream")
	cmd.Flags().IntVar(&opts.tempo, "tempo", 0, "tempo in BPM (default from config)")

	cmd.AddCommand(
		newPortsCmd(),
		newPollCmd(),
		newSaveCmd(opts),
		newRestoreCmd(opts),
	)
	return cmd
}
