// cmd/siggenctl/sequence.go
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"siggen-service/internal/app"
	"siggen-service/internal/utils"
)

// sequenceCmd represents the sequence command
var sequenceCmd = &cobra.Command{
	Use:   "sequence [name]",
	Short: "List or run command sequences",
	Long: `Without a name, list the configured sequences. With a name, run it on the
device. Steps already written stay applied when a later step fails.

Use --show to print the commands of a sequence without running it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		show, _ := cmd.Flags().GetBool("show")

		if len(args) == 0 || show {
			device, _, logger, err := newDevice(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer utils.CloseLogger(logger)

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range device.Session.Sequences() {
					seq, _ := device.Session.Sequence(name)
					fmt.Fprintf(out, "%-12s v%-3d %d step(s)\n", name, seq.Version, len(seq.Steps))
				}
				return nil
			}

			seq, ok := device.Session.Sequence(args[0])
			if !ok {
				return fmt.Errorf("unknown sequence %q", args[0])
			}
			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s v%d", seq.Name, seq.Version)))
			for i, step := range seq.Steps {
				fmt.Fprintf(out, "%3d  %-24s %s\n", i+1, strings.TrimRight(step.Command, "\r\n"), dimStyle.Render(step.Settle.String()))
			}
			return nil
		}

		return withSession(cmd, func(ctx context.Context, device *app.Device) error {
			return device.Session.RunSequence(ctx, args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(sequenceCmd)

	sequenceCmd.Flags().Bool("show", false, "Print the sequence commands without running them")
}
