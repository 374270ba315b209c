package history

import (
	"database/sql"
	"errors"
	"time"
)

const recordColumns = "id, name, worker, status, attempts, bytes, duration_ms, last_error, first_seen, last_attempt, pushed_at, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id             int64
		name           string
		worker         string
		statusStr      string
		attempts       int
		bytes          int64
		durationMS     int64
		lastError      sql.NullString
		firstSeenRaw   sql.NullString
		lastAttemptRaw sql.NullString
		pushedAtRaw    sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&name,
		&worker,
		&statusStr,
		&attempts,
		&bytes,
		&durationMS,
		&lastError,
		&firstSeenRaw,
		&lastAttemptRaw,
		&pushedAtRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		ID:        id,
		Name:      name,
		Worker:    worker,
		Status:    Status(statusStr),
		Attempts:  attempts,
		Bytes:     bytes,
		Duration:  time.Duration(durationMS) * time.Millisecond,
		LastError: lastError.String,
	}

	if firstSeen, err := parseTimeString(firstSeenRaw.String); err == nil {
		record.FirstSeen = firstSeen
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	if lastAttemptRaw.Valid {
		if lastAttempt, err := parseTimeString(lastAttemptRaw.String); err == nil {
			record.LastAttempt = &lastAttempt
		}
	}
	if pushedAtRaw.Valid {
		if pushedAt, err := parseTimeString(pushedAtRaw.String); err == nil {
			record.PushedAt = &pushedAt
		}
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
