package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newPromoteCommand marks a finished render as ready, clearing any failure
// marker first so a failed artifact can be retried.
func newPromoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <name|path>",
		Short: "Mark a completed render ready for pushing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := resolveArtifactArg(cfg, args[0])
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if dir.HasFailed() {
				if err := dir.ClearFailed(); err != nil {
					return fmt.Errorf("clear failure marker: %w", err)
				}
				fmt.Fprintf(stdout, "Cleared failure marker on %s\n", dir.Name)
			}

			promoted, err := dir.Promote()
			if err != nil {
				return err
			}
			switch {
			case promoted:
				fmt.Fprintf(stdout, "Promoted %s\n", dir.Name)
			case dir.HasReady():
				fmt.Fprintf(stdout, "%s is already ready\n", dir.Name)
			default:
				return fmt.Errorf("%s has no completion marker; the render has not finished", dir.Name)
			}
			return nil
		},
	}
}
