package history

import "time"

// Status tracks a ledger record through the push lifecycle.
type Status string

const (
	StatusPending Status = "pending"
	StatusPushing Status = "pushing"
	StatusPushed  Status = "pushed"
	StatusFailed  Status = "failed"
)

// Record is one artifact's replication history.
type Record struct {
	ID          int64
	Name        string
	Worker      string
	Status      Status
	Attempts    int
	Bytes       int64
	Duration    time.Duration
	LastError   string
	FirstSeen   time.Time
	LastAttempt *time.Time
	PushedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Summary aggregates ledger counts for status output.
type Summary struct {
	Pending     int
	Pushing     int
	Pushed      int
	Failed      int
	BytesPushed int64
}

// Total returns the number of tracked artifacts.
func (s Summary) Total() int {
	return s.Pending + s.Pushing + s.Pushed + s.Failed
}
