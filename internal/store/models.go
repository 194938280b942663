package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

const (
	HistoryRunning   = "running"
	HistoryCompleted = "completed"
	HistoryFailed    = "failed"
)

// Conflict records a resource whose local and remote copies diverged.
type Conflict struct {
	ID                 string          `db:"id"`
	Resource           string          `db:"resource"`
	ResourceID         string          `db:"resource_id"`
	LocalData          json.RawMessage `db:"local_data"`
	RemoteData         json.RawMessage `db:"remote_data"`
	ConflictType       string          `db:"conflict_type"`
	DetectedAt         time.Time       `db:"detected_at"`
	Resolved           bool            `db:"resolved"`
	ResolutionStrategy sql.NullString  `db:"resolution_strategy"`
	ResolvedAt         sql.NullTime    `db:"resolved_at"`
	ResolvedData       json.RawMessage `db:"resolved_data"`
}

// SyncHistory is one replay pass over the pending-operation queue.
type SyncHistory struct {
	ID           string         `db:"id"`
	StartedAt    time.Time      `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	Trigger      string         `db:"trigger_source"`
	Processed    int64          `db:"processed"`
	Failed       int            `db:"failed"`
	Status       string         `db:"status"`
	ErrorMessage sql.NullString `db:"error_message"`
}
