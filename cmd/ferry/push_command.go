package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"ferry/internal/artifact"
	"ferry/internal/config"
	"ferry/internal/history"
	"ferry/internal/metrics"
	"ferry/internal/pusher"
	"ferry/internal/secrets"
	"ferry/internal/transfer"
)

// Exit codes for push failures that scripts branch on.
const (
	exitNoIdentity  = 3
	exitNoHostPins  = 4
	exitRemoteMkdir = 5
)

// newPushCommand pushes a single artifact in-process, without the daemon. The
// per-artifact lock keeps a concurrent daemon push and a manual push from
// racing each other.
func newPushCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "push <name|path>",
		Short: "Push one artifact to the ingest host",
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

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if wait {
				if err := waitForCompletion(runCtx, dir, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			if _, err := dir.Promote(); err != nil {
				return err
			}

			result, err := runDirectPush(runCtx, cfg, dir)
			if err != nil {
				return wrapPushError(err)
			}
			printPushResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the render to drop its completion marker before pushing")
	return cmd
}

// waitForCompletion blocks until the artifact carries a completion or ready
// marker, polling because the render process may live on another host view
// of the same filesystem.
func waitForCompletion(ctx context.Context, dir artifact.Dir, progress io.Writer) error {
	if dir.HasDone() || dir.HasReady() {
		return nil
	}
	fmt.Fprintf(progress, "Waiting for %s to finish rendering...\n", dir.Name)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if dir.HasDone() || dir.HasReady() {
				return nil
			}
		}
	}
}

func runDirectPush(ctx context.Context, cfg *config.Config, dir artifact.Dir) (pusher.Result, error) {
	logger, err := commandLogger(cfg)
	if err != nil {
		return pusher.Result{}, fmt.Errorf("init logger: %w", err)
	}

	store, err := history.Open(cfg)
	if err != nil {
		return pusher.Result{}, fmt.Errorf("open history ledger: %w", err)
	}
	defer store.Close()

	collector := metrics.NewCollector(prometheus.NewRegistry())
	p, err := pusher.New(cfg, store, nil, collector, logger)
	if err != nil {
		return pusher.Result{}, err
	}
	return p.Push(ctx, dir)
}

func wrapPushError(err error) error {
	switch {
	case errors.Is(err, secrets.ErrIdentityNotFound):
		return &exitCodeError{code: exitNoIdentity, err: err}
	case errors.Is(err, secrets.ErrKnownHostsNotFound):
		return &exitCodeError{code: exitNoHostPins, err: err}
	case errors.Is(err, transfer.ErrRemoteMkdir):
		return &exitCodeError{code: exitRemoteMkdir, err: err}
	default:
		return err
	}
}

func printPushResult(out io.Writer, result pusher.Result) {
	if result.Skipped {
		fmt.Fprintf(out, "Skipped %s: %s\n", result.Name, result.Reason)
		return
	}
	fmt.Fprintf(out, "Pushed %s (%s in %s, attempt %d)\n",
		result.Name,
		humanize.IBytes(uint64(result.Bytes)),
		result.Duration.Round(time.Millisecond),
		result.Attempt,
	)
}
