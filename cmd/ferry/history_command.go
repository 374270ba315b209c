package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ferry/internal/api"
	"ferry/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent push outcomes from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := fetchHistory(cmd.Context(), ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.HistoryResponse{Records: records})
			}

			stdout := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(stdout, "No pushes recorded")
				return nil
			}
			table := renderTable(
				[]string{"ID", "Artifact", "Status", "Attempts", "Bytes", "Last attempt", "Error"},
				buildHistoryRows(records),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprint(stdout, table)
			fmt.Fprintln(stdout)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of ledger rows to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

// fetchHistory prefers the daemon's view of the ledger and falls back to
// opening the database directly when the daemon is down.
func fetchHistory(cmdCtx context.Context, ctx *commandContext, limit int) ([]api.HistoryRecord, error) {
	if client, err := ctx.dialClient(); err == nil {
		defer client.Close()
		if resp, histErr := client.History(limit); histErr == nil && resp != nil {
			return resp.Records, nil
		}
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history ledger: %w", err)
	}
	defer store.Close()

	records, err := store.Recent(cmdCtx, limit)
	if err != nil {
		return nil, err
	}
	return api.FromRecords(records), nil
}
