package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"ferry/internal/api"
	"ferry/internal/ipc"
)

func daemonStatusLines(snapshot *ipc.StatusResponse, colorize bool) []string {
	var lines []string
	if snapshot.Running {
		lines = append(lines, renderStatusLine("Ferry", statusOK, fmt.Sprintf("Running (pid %d)", snapshot.PID), colorize))
	} else {
		lines = append(lines, renderStatusLine("Ferry", statusWarn, "Not running (start with `ferry start`)", colorize))
	}
	if snapshot.WorkerID != "" {
		lines = append(lines, renderStatusLine("Worker", statusInfo, snapshot.WorkerID, colorize))
	}
	if snapshot.StartedAt != "" {
		lines = append(lines, renderStatusLine("Started", statusInfo, formatDisplayTime(snapshot.StartedAt), colorize))
	}
	lines = append(lines, renderStatusLine("Socket", statusInfo, snapshot.SocketPath, colorize))
	lines = append(lines, renderStatusLine("Ledger DB", statusInfo, snapshot.HistoryDBPath, colorize))
	return lines
}

func watchStatusLines(watch api.WatchStatus, colorize bool) []string {
	lines := []string{renderStatusLine("Mode", statusInfo, watch.Mode, colorize)}
	if watch.Degraded {
		lines = append(lines, renderStatusLine("Events", statusWarn, "degraded to polling (inotify unavailable)", colorize))
	}
	if watch.LastSweep != "" {
		lines = append(lines, renderStatusLine("Last sweep", statusOK, formatDisplayTime(watch.LastSweep), colorize))
	} else {
		lines = append(lines, renderStatusLine("Last sweep", statusInfo, "never", colorize))
	}
	return lines
}

func taskStatusLines(tasks []api.TaskHealth, colorize bool) []string {
	lines := make([]string, 0, len(tasks))
	for _, task := range tasks {
		kind := statusOK
		detail := strings.TrimSpace(task.Detail)
		if task.Ready {
			if detail == "" {
				detail = "ready"
			}
		} else {
			kind = statusWarn
			if detail == "" {
				detail = "not ready"
			}
		}
		lines = append(lines, renderStatusLine(task.Name, kind, detail, colorize))
	}
	return lines
}

func buildLedgerRows(ledger api.LedgerSummary) [][]string {
	return [][]string{
		{"Pending", strconv.Itoa(ledger.Pending)},
		{"Pushing", strconv.Itoa(ledger.Pushing)},
		{"Pushed", strconv.Itoa(ledger.Pushed)},
		{"Failed", strconv.Itoa(ledger.Failed)},
		{"Bytes pushed", humanize.IBytes(uint64(ledger.BytesPushed))},
	}
}

func buildHistoryRows(records []api.HistoryRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			strconv.FormatInt(record.ID, 10),
			record.Name,
			formatStatusLabel(record.Status),
			strconv.Itoa(record.Attempts),
			humanize.IBytes(uint64(record.Bytes)),
			formatDisplayTime(record.LastAttempt),
			formatErrorSnippet(record.LastError),
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func formatErrorSnippet(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return "-"
	}
	const maxLen = 48
	if len(message) > maxLen {
		return message[:maxLen-3] + "..."
	}
	return message
}
