package domain

import (
	"context"
	"time"
)

// QueueItemStatus is the user-visible status of a queue item (spec §3
// "Queue item"). It maps onto SessionStatus as: queued has no session until
// first dispatched (a resumed item is re-queued with its paused session);
// downloading/paused mirror the coordinator's session status directly;
// completed/failed are terminal and match the session's terminal state;
// cancelled has no session-side equivalent (the session is deleted).
type QueueItemStatus string

const (
	QueueQueued      QueueItemStatus = "queued"
	QueueDownloading QueueItemStatus = "downloading"
	QueuePaused      QueueItemStatus = "paused"
	QueueCompleted   QueueItemStatus = "completed"
	QueueFailed      QueueItemStatus = "failed"
	QueueCancelled   QueueItemStatus = "cancelled"
)

// QueueItem is the user-visible unit of work submitted to the queue,
// distinct from the Session which is the engine's view of the same work
// (GLOSSARY). Overrides carry the caller-supplied values that take
// precedence over the global settings for this one item, including across
// a resume after restart (spec §9 Open Questions: per-item max_connections
// is persisted and re-applied on resume).
type QueueItem struct {
	ID       string
	URL      string
	Overrides Overrides

	Status             QueueItemStatus
	ProgressPercentage float64
	DownloadSpeed      float64
	ETASeconds         float64
	FilePath           string
	Error              string

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	// cancel is the in-process cancellation hook for the coordinator
	// currently running this item, if any. Not persisted.
	cancel context.CancelFunc
}

// Overrides carries caller-provided values that take precedence over the
// global settings for one queue item (spec §3 "Queue item").
type Overrides struct {
	Filename        string
	OutputDir       string
	Headers         map[string]string
	MaxConnections  int // 0 means "use the global setting"
}

func (item *QueueItem) SetCancel(fn context.CancelFunc) { item.cancel = fn }

func (item *QueueItem) Cancel() {
	if item.cancel != nil {
		item.cancel()
	}
}

// QueueStats is the aggregate the queue manager's Stats() operation returns
// (spec §4.9 names `stats` without defining its shape; shape follows the
// fetchx_cli original's status-table aggregate — see SPEC_FULL.md).
type QueueStats struct {
	Queued            int
	Downloading       int
	Paused            int
	Completed         int
	Failed            int
	Cancelled         int
	TotalThroughputBps float64
}
