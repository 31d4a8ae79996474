package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const scanTimeout = 3 * time.Second

func main() {
	defer midi.CloseDriver()

	root := &cobra.Command{
		Use:          "miditest",
		Short:        "MIDI diagnostics for chance-machine",
		SilenceUsage: true,
	}
	root.AddCommand(newListCmd(), newPollCmd(), newSendCCCmd(), newMonitorCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type portList struct {
	ins  []drivers.In
	outs []drivers.Out
}

// scan enumerates ports off the calling goroutine; a wedged MIDI service
// can hang enumeration forever
func scan(timeout time.Duration) (portList, error) {
	ch := make(chan portList, 1)
	go func() {
		ch <- portList{ins: midi.GetInPorts(), outs: midi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r, nil
	case <-time.After(timeout):
		return portList{}, fmt.Errorf("MIDI enumeration timed out after %s (try: sudo killall coreaudiod midiserver)", timeout)
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all MIDI ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "(waiting up to %s...)\n", scanTimeout)
			r, err := scan(scanTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "=== MIDI Input Ports ===")
			for i, p := range r.ins {
				fmt.Fprintf(w, "  %d: %s\n", i, p.String())
			}
			fmt.Fprintln(w, "\n=== MIDI Output Ports ===")
			for i, p := range r.outs {
				fmt.Fprintf(w, "  %d: %s\n", i, p.String())
			}
			return nil
		},
	}
}

func newPollCmd() *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll for device changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Polling for device changes every %s. Ctrl+C to exit.\n", every)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			var lastIn, lastOut string
			ticker := time.NewTicker(every)
			defer ticker.Stop()

			for {
				r, err := scan(scanTimeout)
				if err != nil {
					fmt.Fprintf(w, "[%s] %v\n", time.Now().Format("15:04:05"), err)
				} else {
					inNames := names(r.ins)
					outNames := names(r.outs)
					currentIn := strings.Join(inNames, ",")
					currentOut := strings.Join(outNames, ",")

					if currentIn != lastIn || currentOut != lastOut {
						fmt.Fprintf(w, "\n[%s] Device change detected!\n", time.Now().Format("15:04:05"))
						fmt.Fprintf(w, "  Inputs: %v\n", inNames)
						fmt.Fprintf(w, "  Outputs: %v\n", outNames)
						lastIn, lastOut = currentIn, currentOut
					}
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&every, "every", 2*time.Second, "poll interval")
	return cmd
}

func newSendCCCmd() *cobra.Command {
	var (
		channel int
		cc      int
		count   int
		gap     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send-cc <output>",
		Short: "Toggle a CC between 127 and 0 on an output",
		Long: `send-cc alternates a controller between 127 and 0, the way the
sequencer's CC mode does on each step edge. <output> matches the start of
a port name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if channel < 1 || channel > 16 {
				return fmt.Errorf("channel %d out of range 1..16", channel)
			}
			if cc < 0 || cc > 127 {
				return fmt.Errorf("cc %d out of range 0..127", cc)
			}

			r, err := scan(scanTimeout)
			if err != nil {
				return err
			}
			out := findOut(r.outs, args[0])
			if out == nil {
				return fmt.Errorf("no output matching %q", args[0])
			}

			send, err := midi.SendTo(out)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Sending CC %d on channel %d to %s\n", cc, channel, out.String())
			for i := 0; i < count; i++ {
				value := uint8(127)
				if i%2 == 1 {
					value = 0
				}
				if err := send(midi.ControlChange(uint8(channel-1), uint8(cc), value)); err != nil {
					return err
				}
				fmt.Fprintf(w, "  %3d -> %d\n", i, value)
				time.Sleep(gap)
			}
			fmt.Fprintln(w, "Done!")
			return nil
		},
	}
	cmd.Flags().IntVar(&channel, "channel", 1, "MIDI channel (1-16)")
	cmd.Flags().IntVar(&cc, "cc", 20, "controller number")
	cmd.Flags().IntVar(&count, "count", 8, "number of messages")
	cmd.Flags().DurationVar(&gap, "gap", 250*time.Millisecond, "time between messages")
	return cmd
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <input>",
		Short: "Print messages arriving on an input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := scan(scanTimeout)
			if err != nil {
				return err
			}
			var in drivers.In
			for _, p := range r.ins {
				if strings.HasPrefix(p.String(), args[0]) {
					in = p
					break
				}
			}
			if in == nil {
				return fmt.Errorf("no input matching %q", args[0])
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Listening on %s. Ctrl+C to exit.\n", in.String())
			stop, err := midi.ListenTo(in, func(msg midi.Message, ms int32) {
				fmt.Fprintf(w, "  %8dms %s\n", ms, msg)
			})
			if err != nil {
				return err
			}
			defer stop()

			<-ctx.Done()
			return nil
		},
	}
}

func findOut(outs []drivers.Out, prefix string) drivers.Out {
	for _, p := range outs {
		if strings.HasPrefix(p.String(), prefix) {
			return p
		}
	}
	return nil
}

func names[T fmt.Stringer](ports []T) []string {
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		out = append(out, p.String())
	}
	return out
}
