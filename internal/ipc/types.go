package ipc

import "ferry/internal/api"

// PingRequest checks daemon liveness.
type PingRequest struct{}

// PingResponse identifies the daemon process answering the socket.
type PingResponse struct {
	Pong     bool   `json:"pong"`
	PID      int    `json:"pid"`
	WorkerID string `json:"workerId"`
}

// StopRequest halts the supervised tasks.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse mirrors the HTTP status DTO for socket callers.
type StatusResponse = api.DaemonStatus

// SweepRequest triggers an immediate scan of the artifact root.
type SweepRequest struct{}

// SweepResponse reports how many artifacts the sweep queued.
type SweepResponse struct {
	Queued int `json:"queued"`
}

// PushRequest dispatches a single artifact by directory name.
type PushRequest struct {
	Name string `json:"name"`
}

// PushResponse reports the outcome of the dispatched push.
type PushResponse = api.PushReceipt

// PruneRequest triggers one retention cycle.
type PruneRequest struct{}

// PruneResponse summarizes the retention cycle.
type PruneResponse = api.PruneReport

// HistoryRequest asks for the most recent ledger rows.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse carries a page of ledger rows.
type HistoryResponse = api.HistoryResponse
