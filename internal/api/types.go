package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// TaskHealth mirrors readiness reporting for supervised tasks.
type TaskHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WatchStatus describes how the watcher is currently observing the
// artifact root.
type WatchStatus struct {
	Mode      string `json:"mode"`
	Degraded  bool   `json:"degraded"`
	LastSweep string `json:"lastSweep,omitempty"`
}

// LedgerSummary aggregates push-history counts.
type LedgerSummary struct {
	Pending     int   `json:"pending"`
	Pushing     int   `json:"pushing"`
	Pushed      int   `json:"pushed"`
	Failed      int   `json:"failed"`
	BytesPushed int64 `json:"bytesPushed"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool          `json:"running"`
	PID           int           `json:"pid"`
	WorkerID      string        `json:"workerId"`
	StartedAt     string        `json:"startedAt,omitempty"`
	Watch         WatchStatus   `json:"watch"`
	Tasks         []TaskHealth  `json:"tasks"`
	Ledger        LedgerSummary `json:"ledger"`
	HistoryDBPath string        `json:"historyDbPath"`
	LockFilePath  string        `json:"lockFilePath"`
	SocketPath    string        `json:"socketPath"`
}

// PushReceipt reports the outcome of a single push dispatch.
type PushReceipt struct {
	Name       string `json:"name"`
	Skipped    bool   `json:"skipped"`
	Reason     string `json:"reason,omitempty"`
	Attempt    int    `json:"attempt,omitempty"`
	Bytes      int64  `json:"bytes,omitempty"`
	DurationMS int64  `json:"durationMs,omitempty"`
}

// PruneReport summarizes one retention cycle.
type PruneReport struct {
	AgePruned      int    `json:"agePruned"`
	SpacePruned    int    `json:"spacePruned"`
	ReclaimedBytes int64  `json:"reclaimedBytes"`
	FreeBytes      uint64 `json:"freeBytes"`
	Shortfall      bool   `json:"shortfall"`
}

// HistoryRecord describes one ledger row in a transport-friendly format.
type HistoryRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Worker      string `json:"worker"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	Bytes       int64  `json:"bytes"`
	DurationMS  int64  `json:"durationMs"`
	LastError   string `json:"lastError,omitempty"`
	FirstSeen   string `json:"firstSeen,omitempty"`
	LastAttempt string `json:"lastAttempt,omitempty"`
	PushedAt    string `json:"pushedAt,omitempty"`
}

// CheckResult carries one preflight check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Advisory bool   `json:"advisory,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// HistoryResponse wraps a page of ledger rows.
type HistoryResponse struct {
	Records []HistoryRecord `json:"records"`
}

// PreflightResponse wraps a full preflight run.
type PreflightResponse struct {
	Passed bool          `json:"passed"`
	Checks []CheckResult `json:"checks"`
}
