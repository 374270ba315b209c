package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ferry/internal/ipc"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Scan the artifact root now instead of waiting for the next interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sweep()
				if err != nil {
					return fmt.Errorf("sweep: %w", err)
				}
				stdout := cmd.OutOrStdout()
				if resp.Queued == 0 {
					fmt.Fprintln(stdout, "Nothing ready to push")
					return nil
				}
				fmt.Fprintf(stdout, "Queued %d artifacts for push\n", resp.Queued)
				return nil
			})
		},
	}
}

func newPruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Apply the retention policy to archived artifacts now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Prune()
				if err != nil {
					return fmt.Errorf("prune: %w", err)
				}

				stdout := cmd.OutOrStdout()
				pruned := resp.AgePruned + resp.SpacePruned
				if pruned == 0 {
					fmt.Fprintln(stdout, "Nothing to prune")
				} else {
					fmt.Fprintf(stdout, "Pruned %d archived artifacts (%s reclaimed)\n",
						pruned, humanize.IBytes(uint64(resp.ReclaimedBytes)))
				}
				if resp.Shortfall {
					fmt.Fprintf(stdout, "Warning: free space still below the configured floor (%s free)\n",
						humanize.IBytes(resp.FreeBytes))
				}
				return nil
			})
		},
	}
}
