package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"ferry/internal/config"
)

// Store persists per-artifact push history in SQLite. The filesystem
// sentinels remain authoritative for lifecycle decisions; the ledger exists
// for attempt counting, status output, and operator forensics.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// BeginAttempt records the start of a push attempt for name, creating the
// record on first sight. It returns the attempt number just started.
func (s *Store) BeginAttempt(ctx context.Context, name, worker string) (int, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO artifacts (
            name, worker, status, attempts, first_seen, last_attempt, created_at, updated_at
        ) VALUES (?, ?, ?, 1, ?, ?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET
            attempts = attempts + 1,
            status = excluded.status,
            worker = excluded.worker,
            last_attempt = excluded.last_attempt,
            updated_at = excluded.updated_at`,
		name,
		worker,
		StatusPushing,
		timestamp,
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("begin attempt: %w", err)
	}

	var attempts int
	row := s.db.QueryRowContext(ctx, `SELECT attempts FROM artifacts WHERE name = ?`, name)
	if err := row.Scan(&attempts); err != nil {
		return 0, fmt.Errorf("read attempt count: %w", err)
	}
	return attempts, nil
}

// MarkPushed finalizes a successful push with transfer size and duration.
func (s *Store) MarkPushed(ctx context.Context, name string, bytes int64, duration time.Duration) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts
         SET status = ?, bytes = ?, duration_ms = ?, last_error = NULL,
             pushed_at = ?, updated_at = ?
         WHERE name = ?`,
		StatusPushed,
		bytes,
		duration.Milliseconds(),
		now,
		now,
		name,
	)
	if err != nil {
		return fmt.Errorf("mark pushed: %w", err)
	}
	return requireRow(res, name)
}

// MarkFailed records an attempt's error. With terminal set the record enters
// the failed state; otherwise it returns to pending for the next sweep.
func (s *Store) MarkFailed(ctx context.Context, name, message string, terminal bool) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts
         SET status = ?, last_error = ?, updated_at = ?
         WHERE name = ?`,
		status,
		nullableString(message),
		now,
		name,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireRow(res, name)
}

// Get fetches the record for an artifact name, nil when absent.
func (s *Store) Get(ctx context.Context, name string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM artifacts WHERE name = ?`, name)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// Recent returns the most recently updated records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM artifacts ORDER BY updated_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Summary aggregates record counts per status plus total bytes replicated.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1), COALESCE(SUM(bytes), 0) FROM artifacts GROUP BY status`,
	)
	if err != nil {
		return Summary{}, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var status string
		var count int
		var bytes int64
		if err := rows.Scan(&status, &count, &bytes); err != nil {
			return Summary{}, fmt.Errorf("scan summary: %w", err)
		}
		switch Status(status) {
		case StatusPending:
			summary.Pending = count
		case StatusPushing:
			summary.Pushing = count
		case StatusPushed:
			summary.Pushed = count
			summary.BytesPushed = bytes
		case StatusFailed:
			summary.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate summary: %w", err)
	}
	return summary, nil
}

// Health verifies the ledger connection answers queries.
func (s *Store) Health(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("ledger not open")
	}
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ledger query: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, name string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no ledger record for %s", name)
	}
	return nil
}
