package api

import (
	"time"

	"ferry/internal/history"
	"ferry/internal/preflight"
	"ferry/internal/pusher"
	"ferry/internal/retainer"
	"ferry/internal/supervisor"
)

// FromRecord converts a ledger row to its API representation.
func FromRecord(rec *history.Record) HistoryRecord {
	if rec == nil {
		return HistoryRecord{}
	}
	dto := HistoryRecord{
		ID:         rec.ID,
		Name:       rec.Name,
		Worker:     rec.Worker,
		Status:     string(rec.Status),
		Attempts:   rec.Attempts,
		Bytes:      rec.Bytes,
		DurationMS: rec.Duration.Milliseconds(),
		LastError:  rec.LastError,
		FirstSeen:  FormatTime(rec.FirstSeen),
	}
	if rec.LastAttempt != nil {
		dto.LastAttempt = FormatTime(*rec.LastAttempt)
	}
	if rec.PushedAt != nil {
		dto.PushedAt = FormatTime(*rec.PushedAt)
	}
	return dto
}

// FromRecords converts a slice of ledger rows into API DTOs.
func FromRecords(records []*history.Record) []HistoryRecord {
	if len(records) == 0 {
		return nil
	}
	out := make([]HistoryRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromSummary converts aggregate ledger counts to an API payload.
func FromSummary(summary history.Summary) LedgerSummary {
	return LedgerSummary{
		Pending:     summary.Pending,
		Pushing:     summary.Pushing,
		Pushed:      summary.Pushed,
		Failed:      summary.Failed,
		BytesPushed: summary.BytesPushed,
	}
}

// FromTaskHealth converts supervised-task health snapshots.
func FromTaskHealth(health []supervisor.Health) []TaskHealth {
	if len(health) == 0 {
		return nil
	}
	out := make([]TaskHealth, 0, len(health))
	for _, h := range health {
		out = append(out, TaskHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromPushResult converts a push outcome to its API representation.
func FromPushResult(res pusher.Result) PushReceipt {
	return PushReceipt{
		Name:       res.Name,
		Skipped:    res.Skipped,
		Reason:     res.Reason,
		Attempt:    res.Attempt,
		Bytes:      res.Bytes,
		DurationMS: res.Duration.Milliseconds(),
	}
}

// FromPruneReport converts a retention cycle report.
func FromPruneReport(report retainer.Report) PruneReport {
	return PruneReport{
		AgePruned:      report.AgePruned,
		SpacePruned:    report.SpacePruned,
		ReclaimedBytes: report.Reclaimed,
		FreeBytes:      report.FreeBytes,
		Shortfall:      report.Shortfall,
	}
}

// FromCheckResults converts a preflight run into an API payload.
func FromCheckResults(results []preflight.Result) PreflightResponse {
	resp := PreflightResponse{Passed: preflight.AllPassed(results)}
	if len(results) == 0 {
		return resp
	}
	resp.Checks = make([]CheckResult, 0, len(results))
	for _, result := range results {
		resp.Checks = append(resp.Checks, CheckResult{
			Name:     result.Name,
			Passed:   result.Passed,
			Advisory: result.Advisory,
			Detail:   result.Detail,
		})
	}
	return resp
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
