package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ferry/internal/api"
	"ferry/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Verify configuration, tools, and remote access before relying on the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			if asJSON {
				return writeJSON(cmd, api.FromCheckResults(results))
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, result := range results {
				kind := statusOK
				switch {
				case !result.Passed && result.Advisory:
					kind = statusWarn
				case !result.Passed:
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			fmt.Fprintln(stdout)
			if preflight.AllPassed(results) {
				fmt.Fprintln(stdout, "All preflight checks passed")
				return nil
			}
			return errors.New("preflight checks failed")
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a report")
	return cmd
}
