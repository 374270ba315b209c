package main

import (
	"strings"

	"github.com/spf13/cobra"

	"ferry/internal/daemonrun"
)

// newDaemonRunCommand wires the hidden `ferry daemon run` entrypoint that
// `ferry start` launches in the background. Operators use start/stop/restart;
// this command exists so the daemon and the CLI ship as one binary.
func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Daemon process plumbing",
		Hidden:       true,
		SilenceUsage: true,
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var logLevel string

	runCmd := &cobra.Command{
		Use:          "run",
		Short:        "Run the ferry daemon in the foreground",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := daemonrun.Options{LogLevel: strings.TrimSpace(logLevel)}
			if ctx.socketFlag != nil {
				opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level for this run")

	daemonCmd.AddCommand(runCmd)
	return daemonCmd
}
