// Package queue implements C8: the concurrent job queue that bounds how
// many C6 coordinators run at once, exposes add/list/pause/resume/cancel,
// and resolves caller-supplied id prefixes (spec §4.9). Grounded on
// internal/engine/manager.go's QueueManager (RAM-queue-plus-DB-fallback
// shape, initFromDatabase/ResetStuckQueueItems restart recovery,
// newJobChan signaling), generalized from one active item at a time to up
// to queue.max_concurrent_downloads running concurrently.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/fetchd/fetchd/internal/config"
	"github.com/fetchd/fetchd/internal/coordinator"
	"github.com/fetchd/fetchd/internal/domain"
	"github.com/fetchd/fetchd/internal/finalizer"
	"github.com/fetchd/fetchd/internal/logging"
	"github.com/fetchd/fetchd/internal/store"
)

// activeJob tracks the in-flight coordinator run backing one downloading or
// paused-mid-flight queue item, so Pause/Cancel/Resume can reach it without
// the queue item itself holding coordinator-shaped state.
type activeJob struct {
	item  *domain.QueueItem
	pause *coordinator.PauseFlag
}

// Manager is C8.
type Manager struct {
	mu     sync.RWMutex
	store  store.Store
	coord  *coordinator.Coordinator
	logger *logging.Logger
	cfg    *config.Config

	queue  []*domain.QueueItem
	active map[string]*activeJob

	newJobChan  chan struct{}
	itemDoneCh  chan struct{}
	stopFunc    context.CancelFunc
}

// NewManager constructs a Manager. When loadExisting is true (normal
// daemon startup), items left downloading or paused are reset to queued and
// the in-memory queue is rehydrated from the database's non-terminal items
// (spec §4.8, §4.9).
func NewManager(st store.Store, coord *coordinator.Coordinator, logger *logging.Logger, cfg *config.Config, loadExisting bool) *Manager {
	m := &Manager{
		store:      st,
		coord:      coord,
		logger:     logger,
		cfg:        cfg,
		active:     make(map[string]*activeJob),
		newJobChan: make(chan struct{}, 1),
		itemDoneCh: make(chan struct{}, 1),
	}
	if loadExisting {
		m.initFromDatabase()
	}
	return m
}

func (m *Manager) initFromDatabase() {
	ctx := context.Background()

	if err := m.store.ResetStuckQueueItems(ctx, domain.QueueQueued,
		domain.QueueDownloading, domain.QueuePaused); err != nil {
		m.logger.Error("failed to reset stuck queue items: %v", err)
	}

	items, err := m.store.GetActiveQueueItems(ctx)
	if err != nil {
		m.logger.Error("failed to load queue from database: %v", err)
		return
	}

	m.mu.Lock()
	m.queue = items
	m.mu.Unlock()

	m.logger.Info("queue initialized with %d items", len(items))
}

// Add enqueues a new download and returns its queue item (spec §4.9 `add`).
func (m *Manager) Add(ctx context.Context, url string, overrides domain.Overrides) (*domain.QueueItem, error) {
	item := &domain.QueueItem{
		ID:        ksuid.New().String(),
		URL:       url,
		Overrides: overrides,
		Status:    domain.QueueQueued,
		CreatedAt: time.Now(),
	}

	if err := m.store.SaveQueueItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to save queue item: %w", err)
	}

	m.mu.Lock()
	m.queue = append(m.queue, item)
	m.mu.Unlock()

	m.signal(m.newJobChan)
	return item, nil
}

// Start runs the control loop until ctx is cancelled: dequeue while active
// < max_concurrent_downloads and a queued item exists, harvest finished
// jobs, sleep (spec §4.9).
func (m *Manager) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.stopFunc = cancel
	m.mu.Unlock()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		m.dispatch(loopCtx)

		select {
		case <-loopCtx.Done():
			return
		case <-m.newJobChan:
		case <-m.itemDoneCh:
		case <-ticker.C:
		}
	}
}

// Stop cancels the control loop and every currently running job (spec §4.9).
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopFunc != nil {
		m.stopFunc()
	}
	for _, job := range m.active {
		job.item.Cancel()
	}
}

// dispatch launches as many queued items as the concurrency cap allows.
func (m *Manager) dispatch(ctx context.Context) {
	for {
		m.mu.Lock()
		if len(m.active) >= m.cfg.Queue.MaxConcurrentDownloads {
			m.mu.Unlock()
			return
		}
		var next *domain.QueueItem
		for _, item := range m.queue {
			if item.Status == domain.QueueQueued {
				if _, running := m.active[item.ID]; !running {
					next = item
					break
				}
			}
		}
		if next == nil {
			m.mu.Unlock()
			return
		}

		job := &activeJob{item: next, pause: &coordinator.PauseFlag{}}
		m.active[next.ID] = job
		m.mu.Unlock()

		jobCtx, jobCancel := context.WithCancel(ctx)
		next.SetCancel(jobCancel)
		go m.runItem(jobCtx, job)
	}
}

// runItem drives one queue item's download to a terminal or paused state by
// delegating to C6, then persists the outcome (spec §4.7, §4.9).
func (m *Manager) runItem(ctx context.Context, job *activeJob) {
	item := job.item
	defer func() {
		m.mu.Lock()
		delete(m.active, item.ID)
		m.removeIfTerminal(item)
		m.mu.Unlock()
		m.signal(m.itemDoneCh)
	}()

	sess, err := m.store.GetSession(ctx, item.ID)
	if err != nil {
		m.fail(ctx, item, fmt.Errorf("failed to load session: %w", err))
		return
	}

	if sess == nil {
		sess, err = m.planSession(ctx, item)
	} else {
		maxAge := time.Duration(m.cfg.Cleanup.SessionCleanupAgeDays) * 24 * time.Hour
		if rerr := m.coord.PrepareResume(sess, maxAge); rerr != nil {
			m.logger.Warn("session %s unresumable (%v), replanning", item.ID, rerr)
			finalizer.CleanupStaging(sess.Download.StagingDir)
			_ = m.store.DeleteSession(ctx, sess.ID)
			sess, err = m.planSession(ctx, item)
		}
	}
	if err != nil {
		m.fail(ctx, item, err)
		return
	}

	item.Status = domain.QueueDownloading
	item.StartedAt = time.Now()
	_ = m.store.SaveQueueItem(ctx, item)

	runErr := m.coord.Run(ctx, sess, job.pause)

	item.ProgressPercentage = progressPercent(sess)
	item.DownloadSpeed = sess.Stats.SpeedBytesPerSec
	item.ETASeconds = sess.Stats.ETASeconds

	// ctx is already cancelled when the run was cancelled, so the outcome is
	// persisted through a context that keeps ctx's values but not its cancel.
	persistCtx := context.WithoutCancel(ctx)

	switch {
	case runErr != nil && errors.Is(runErr, context.Canceled):
		// Cancel semantics (spec §4.7, §5): staging and the session row must
		// not survive a cancel, unlike a pause which retains both.
		finalizer.CleanupStaging(sess.Download.StagingDir)
		if derr := m.store.DeleteSession(persistCtx, sess.ID); derr != nil {
			m.logger.Error("failed to delete session %s after cancel: %v", sess.ID, derr)
		}
		item.Status = domain.QueueCancelled
		item.Error = "cancelled by user"
	case runErr != nil:
		item.Status = domain.QueueFailed
		item.Error = runErr.Error()
	case sess.Status == domain.SessionPaused:
		item.Status = domain.QueuePaused
	case sess.Status == domain.SessionCompleted:
		item.Status = domain.QueueCompleted
		item.CompletedAt = time.Now()
		item.FilePath = sess.Download.Destination
		item.ProgressPercentage = 100
	default:
		item.Status = domain.QueueFailed
		item.Error = "download ended in an unexpected state"
	}

	if err := m.store.SaveQueueItem(persistCtx, item); err != nil {
		m.logger.Error("failed to persist final state for %s: %v", item.ID, err)
	}
}

func (m *Manager) planSession(ctx context.Context, item *domain.QueueItem) (*domain.Session, error) {
	destDir := item.Overrides.OutputDir
	if destDir == "" {
		destDir = m.cfg.Paths.DownloadDir
	}
	sess, err := m.coord.Plan(ctx, item.ID, item.URL, destDir, m.cfg.Paths.TempBaseDir,
		item.Overrides, m.cfg.Download.MaxConnections)
	if err != nil {
		return nil, err
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist new session: %w", err)
	}
	return sess, nil
}

func (m *Manager) fail(ctx context.Context, item *domain.QueueItem, err error) {
	item.Status = domain.QueueFailed
	item.Error = err.Error()
	if serr := m.store.SaveQueueItem(ctx, item); serr != nil {
		m.logger.Error("failed to persist failure for %s: %v", item.ID, serr)
	}
}

// removeIfTerminal drops an item from the RAM queue once it reaches a
// terminal or paused state, mirroring the teacher's removeFromLiveQueue.
func (m *Manager) removeIfTerminal(item *domain.QueueItem) {
	if item.Status == domain.QueueDownloading || item.Status == domain.QueueQueued {
		return
	}
	for i, itm := range m.queue {
		if itm.ID == item.ID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

func (m *Manager) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func progressPercent(sess *domain.Session) float64 {
	if sess.Stats.Total <= 0 {
		return 0
	}
	pct := float64(sess.Stats.Downloaded) / float64(sess.Stats.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
