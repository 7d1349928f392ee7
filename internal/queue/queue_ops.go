package queue

import (
	"context"
	"fmt"

	"github.com/fetchd/fetchd/internal/domain"
	"github.com/fetchd/fetchd/internal/store"
)

// Get resolves id as an exact id first, then as a unique prefix (spec §4.9:
// "callers may reference items by a unique prefix of the id"), enriching
// the result with the live session snapshot when the item is downloading.
func (m *Manager) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	item, err := m.store.GetQueueItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		item, err = m.store.FindByPrefix(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return m.enrich(ctx, item), nil
}

// List returns every item, optionally filtered by status (spec §4.9 `list`).
func (m *Manager) List(ctx context.Context, status domain.QueueItemStatus) ([]*domain.QueueItem, error) {
	items, err := m.store.ListQueueItems(ctx, status)
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		items[i] = m.enrich(ctx, item)
	}
	return items, nil
}

// enrich overlays live progress from the session snapshot onto a copy of
// item, so API/CLI callers see sub-5s-stale progress without the queue
// item itself racing against the coordinator's aggregation loop.
func (m *Manager) enrich(ctx context.Context, item *domain.QueueItem) *domain.QueueItem {
	if item == nil || item.Status != domain.QueueDownloading {
		return item
	}
	sess, err := m.store.GetSession(ctx, item.ID)
	if err != nil || sess == nil {
		return item
	}
	copied := *item
	copied.ProgressPercentage = progressPercent(sess)
	copied.DownloadSpeed = sess.Stats.SpeedBytesPerSec
	copied.ETASeconds = sess.Stats.ETASeconds
	return &copied
}

// Pause requests a cooperative stop for a downloading item, or directly
// marks a not-yet-started item paused (spec §4.9 `pause`).
func (m *Manager) Pause(ctx context.Context, id string) error {
	item, err := m.resolve(ctx, id)
	if err != nil {
		return err
	}

	m.mu.RLock()
	job, running := m.active[item.ID]
	m.mu.RUnlock()

	if running {
		job.pause.Request()
		return nil
	}

	if item.Status != domain.QueueQueued {
		return fmt.Errorf("item %s is not pausable from status %s", item.ID, item.Status)
	}
	item.Status = domain.QueuePaused
	return m.store.SaveQueueItem(ctx, item)
}

// Resume re-queues a paused item so the control loop picks it up again; the
// coordinator's PrepareResume re-measures part-files from disk at that
// point (spec §4.8, §4.9 `resume`).
func (m *Manager) Resume(ctx context.Context, id string) error {
	item, err := m.resolve(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != domain.QueuePaused && item.Status != domain.QueueFailed {
		return fmt.Errorf("item %s is not resumable from status %s", item.ID, item.Status)
	}

	item.Status = domain.QueueQueued
	item.Error = ""
	if err := m.store.SaveQueueItem(ctx, item); err != nil {
		return err
	}

	m.mu.Lock()
	if !m.alreadyQueued(item.ID) {
		m.queue = append(m.queue, item)
	}
	m.mu.Unlock()

	m.signal(m.newJobChan)
	return nil
}

// Cancel stops a running item or marks a queued one cancelled outright
// (spec §4.9 `cancel`).
func (m *Manager) Cancel(ctx context.Context, id string) error {
	item, err := m.resolve(ctx, id)
	if err != nil {
		return err
	}

	m.mu.RLock()
	job, running := m.active[item.ID]
	m.mu.RUnlock()

	if running {
		// job.item is the in-memory instance carrying the real cancel
		// func; item here may be a fresh copy loaded from the database
		// by resolve, which never persists that transient field.
		job.item.Cancel()
		return nil
	}

	if item.Status == domain.QueueCompleted || item.Status == domain.QueueCancelled {
		return fmt.Errorf("item %s is already terminal (%s)", item.ID, item.Status)
	}
	item.Status = domain.QueueCancelled
	if err := m.store.SaveQueueItem(ctx, item); err != nil {
		return err
	}
	m.mu.Lock()
	m.removeIfTerminal(item)
	m.mu.Unlock()
	return nil
}

// Stats aggregates counts across every item plus the live throughput of
// currently downloading items (spec §4.9 `stats`; shape supplemented from
// fetchx_cli's status-table aggregate, see SPEC_FULL.md).
func (m *Manager) Stats(ctx context.Context) (domain.QueueStats, error) {
	items, err := m.store.ListQueueItems(ctx, "")
	if err != nil {
		return domain.QueueStats{}, err
	}

	var stats domain.QueueStats
	for _, item := range items {
		switch item.Status {
		case domain.QueueQueued:
			stats.Queued++
		case domain.QueueDownloading:
			stats.Downloading++
			if sess, serr := m.store.GetSession(ctx, item.ID); serr == nil && sess != nil {
				stats.TotalThroughputBps += sess.Stats.SpeedBytesPerSec
			}
		case domain.QueuePaused:
			stats.Paused++
		case domain.QueueCompleted:
			stats.Completed++
		case domain.QueueFailed:
			stats.Failed++
		case domain.QueueCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// resolve looks an item up by exact id or unique prefix, returning
// store.ErrNotFound / store.ErrAmbiguous on failure.
func (m *Manager) resolve(ctx context.Context, id string) (*domain.QueueItem, error) {
	item, err := m.store.GetQueueItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item != nil {
		return item, nil
	}
	item, err = m.store.FindByPrefix(ctx, id)
	if err != nil {
		if err == store.ErrNotFound || err == store.ErrAmbiguous {
			return nil, err
		}
		return nil, err
	}
	return item, nil
}

func (m *Manager) alreadyQueued(id string) bool {
	for _, itm := range m.queue {
		if itm.ID == id {
			return true
		}
	}
	return false
}
