package preflight

import (
	"context"

	"ferry/internal/config"
	"ferry/internal/deps"
)

// Result reports the outcome of a single preflight check. Advisory checks
// cover concerns the daemon can run without: their failure leaves pushes
// failing fast with a distinct error, so startup degrades instead of
// aborting.
type Result struct {
	Name     string
	Passed   bool
	Advisory bool
	Detail   string
}

// RunAll executes every check applicable to the given config, in a stable
// order: configuration, filesystem, ledger, tools, credentials, then the
// advisory remote auth probe.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckConfig(cfg))
	results = append(results, CheckDirectoryAccess("Artifact root", cfg.Sync.ArtifactRoot))
	results = append(results, CheckStateDir(cfg))
	if cfg.Push.Cleanup == config.CleanupArchive {
		results = append(results, CheckArchiveRoot(cfg))
	}
	results = append(results, CheckLedger(cfg))

	for _, status := range deps.CheckBinaries(deps.Required(cfg)) {
		results = append(results, toolResult(status))
	}

	results = append(results, CheckIdentity(cfg))
	results = append(results, CheckKnownHosts(cfg))
	results = append(results, CheckRemoteAuth(ctx, cfg))

	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}

// BlockingFailures filters results down to failed non-advisory checks, the
// ones that should keep a daemon from starting at all.
func BlockingFailures(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed && !result.Advisory {
			failed = append(failed, result)
		}
	}
	return failed
}

func toolResult(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available, Advisory: true}
	if status.Available {
		result.Detail = status.Command
	} else {
		result.Detail = status.Detail
	}
	return result
}
