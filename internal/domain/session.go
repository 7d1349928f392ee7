package domain

import "time"

// SessionStatus is the single status tag shared by sessions; Design Notes
// calls for one enum with a documented mapping rather than duplicated
// per-layer enums. QueueItemStatus (queue.go) documents its mapping from this one.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Session is the durable record that lets a paused or crashed download
// resume without re-fetching completed bytes (spec §3 "Session record",
// §4.8). SchemaVersion lets the persistent store forward-migrate the
// typed, versioned encoding (Design Notes: replace dynamic JSON blobs with
// a versioned schema).
type Session struct {
	ID             string
	URL            string
	Headers        map[string]string
	Download       Download
	Segments       []Segment
	Stats          AggregateStats
	Status         SessionStatus
	SchemaVersion  int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const CurrentSessionSchemaVersion = 1
