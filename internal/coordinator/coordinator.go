// Package coordinator implements C6: the per-download state machine that
// probes, segments, fans out streamers, aggregates progress, merges, and
// promotes one download from start to finish (spec §4.7). Grounded on
// internal/engine/downloader.go's Download (stage sequencing) and
// internal/engine/worker.go's runWorkerPool (fan-out, result collection),
// generalized from a fixed-size NNTP worker pool into a per-segment
// golang.org/x/sync/errgroup fan-out over C2 streamers, with progress
// collected by message passing instead of worker.go's shared
// item.BytesWritten atomic (Design Notes).
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fetchd/fetchd/internal/domain"
	"github.com/fetchd/fetchd/internal/finalizer"
	"github.com/fetchd/fetchd/internal/httpclient"
	"github.com/fetchd/fetchd/internal/logging"
	"github.com/fetchd/fetchd/internal/merger"
	"github.com/fetchd/fetchd/internal/segmenter"
	"github.com/fetchd/fetchd/internal/store"
	"github.com/fetchd/fetchd/internal/streamer"
)

// Config tunes the coordinator's progress cadence (spec §4.7: "aggregation
// loop drains progress messages on a short cadence; a 5s cadence persists a
// snapshot").
type Config struct {
	Streamer         streamer.Config
	SnapshotInterval time.Duration
	SpeedInterval    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Streamer:         streamer.DefaultConfig(),
		SnapshotInterval: 5 * time.Second,
		SpeedInterval:    1 * time.Second,
	}
}

// Coordinator is C6.
type Coordinator struct {
	client *httpclient.Client
	store  store.Store
	logger *logging.Logger
	cfg    Config
}

func New(client *httpclient.Client, st store.Store, logger *logging.Logger, cfg Config) *Coordinator {
	return &Coordinator{client: client, store: st, logger: logger, cfg: cfg}
}

// PauseFlag is the cooperative stop signal shared between the queue manager
// and a running streamer fan-out (Design Notes: no back-reference from C2
// to the coordinator; the streamer only ever sees a func() bool).
type PauseFlag struct {
	flag atomic.Bool
}

func (p *PauseFlag) Request() { p.flag.Store(true) }
func (p *PauseFlag) Check() bool { return p.flag.Load() }

// Plan probes url and lays out a new session's segments (spec §4.1-§4.3).
// destDir and stagingBaseDir come from the caller's resolved paths config;
// defaultMaxConnections is the global download.max_connections setting,
// overridden per-item by overrides.MaxConnections when positive.
func (c *Coordinator) Plan(ctx context.Context, id, url, destDir, stagingBaseDir string, overrides domain.Overrides, defaultMaxConnections int) (*domain.Session, error) {
	probe, err := c.client.Probe(ctx, url, overrides.Headers)
	if err != nil {
		return nil, err
	}

	filename := overrides.Filename
	if filename == "" {
		filename = probe.SuggestedFilename
	}
	if filename == "" {
		filename = filenameFromURL(url)
	}

	stagingDir := filepath.Join(stagingBaseDir, id)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, domain.NewError(domain.KindFilesystem, "plan", err)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, domain.NewError(domain.KindFilesystem, "plan", err)
	}

	// Verify free space at both the staging and destination filesystems
	// before committing to a segment plan (spec §4.7, §7 SpaceError: "fail
	// immediately without retry").
	if probe.TotalBytes >= 0 {
		if err := checkDiskSpace(stagingDir, probe.TotalBytes); err != nil {
			return nil, err
		}
		if err := checkDiskSpace(destDir, probe.TotalBytes); err != nil {
			return nil, err
		}
	}

	destination := finalizer.ResolveCollision(filepath.Join(destDir, filename))

	n := overrides.MaxConnections
	if n <= 0 {
		n = defaultMaxConnections
	}
	plans := segmenter.Compute(probe.TotalBytes, n, probe.AcceptsRanges)

	segments := make([]domain.Segment, len(plans))
	for i, p := range plans {
		segments[i] = domain.Segment{
			Index:    i,
			Start:    p.Start,
			End:      p.End,
			PartPath: segmenter.PartPath(stagingDir, filename, i),
		}
	}

	now := time.Now()
	sess := &domain.Session{
		ID:      id,
		URL:     url,
		Headers: overrides.Headers,
		Download: domain.Download{
			URL:           url,
			Filename:      filename,
			Destination:   destination,
			StagingDir:    stagingDir,
			TotalBytes:    probe.TotalBytes,
			AcceptsRanges: probe.AcceptsRanges,
			ContentType:   probe.ContentType,
			CallerHeaders: overrides.Headers,
		},
		Segments:      segments,
		Stats:         domain.AggregateStats{Total: probe.TotalBytes},
		Status:        domain.SessionActive,
		SchemaVersion: domain.CurrentSessionSchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return sess, nil
}

// PrepareResume re-measures each incomplete segment's part-file size from
// disk and checks for staleness (spec §4.8: a paused or crashed session is
// resumed by re-measuring on-disk part-files, not by trusting the last
// persisted BytesPersisted). maxSessionAge of 0 disables the age check.
func (c *Coordinator) PrepareResume(sess *domain.Session, maxSessionAge time.Duration) error {
	if _, err := os.Stat(sess.Download.StagingDir); err != nil {
		return domain.NewError(domain.KindState, "resume", fmt.Errorf("staging directory missing: session is broken"))
	}
	if maxSessionAge > 0 && time.Since(sess.UpdatedAt) > maxSessionAge {
		return domain.NewError(domain.KindState, "resume", fmt.Errorf("session older than cleanup age, considered stale"))
	}

	for i := range sess.Segments {
		seg := &sess.Segments[i]
		if seg.Complete {
			continue
		}
		info, err := os.Stat(seg.PartPath)
		if err != nil {
			seg.BytesPersisted = 0
			continue
		}
		seg.BytesPersisted = info.Size()
		if seg.MeetsCompletionTolerance() {
			seg.Complete = true
		}
	}
	sess.Status = domain.SessionActive
	return nil
}

// Run drives sess from its current segment state through to a completed,
// merged, and promoted file, or stops early on pause/cancel/failure (spec
// §4.7). paused is checked cooperatively by every streamer between chunks;
// ctx cancellation is the hard-stop signal used for a full cancel.
func (c *Coordinator) Run(ctx context.Context, sess *domain.Session, paused *PauseFlag) error {
	if allSegmentsComplete(sess) {
		return c.mergeAndFinalize(ctx, sess)
	}

	progressCh := make(chan domain.ProgressDelta, 64)
	aggDone := make(chan struct{})
	go c.aggregate(sess, progressCh, aggDone)

	group, gctx := errgroup.WithContext(ctx)
	for i := range sess.Segments {
		if sess.Segments[i].Complete {
			continue
		}
		seg := &sess.Segments[i]
		st := streamer.New(c.client, c.cfg.Streamer)
		group.Go(func() error {
			hooks := streamer.Hooks{Progress: progressCh, Paused: paused.Check}
			_, err := st.Run(gctx, sess.URL, sess.Headers, seg, hooks)
			return err
		})
	}

	runErr := group.Wait()
	close(progressCh)
	<-aggDone

	sess.UpdatedAt = time.Now()

	if runErr != nil {
		// A cancelled run has no session-side status of its own (spec §5:
		// cancel deletes the session outright); leave persisting that to the
		// caller, which owns the cleanup-and-delete step. Only a genuine
		// failure is recorded here.
		if !errors.Is(runErr, context.Canceled) {
			sess.Status = domain.SessionFailed
			_ = c.store.UpdateSession(ctx, sess)
		}
		return runErr
	}

	if !allSegmentsComplete(sess) {
		sess.Status = domain.SessionPaused
		if err := c.store.UpdateSession(ctx, sess); err != nil {
			c.logger.Error("failed to persist paused session %s: %v", sess.ID, err)
		}
		return nil
	}

	return c.mergeAndFinalize(ctx, sess)
}

// mergeAndFinalize concatenates part-files, promotes the result to its
// destination, and cleans staging (spec §4.5, §4.6).
func (c *Coordinator) mergeAndFinalize(ctx context.Context, sess *domain.Session) error {
	partPaths := make([]string, len(sess.Segments))
	for i, seg := range sess.Segments {
		partPaths[i] = seg.PartPath
	}

	mergedPath := filepath.Join(sess.Download.StagingDir, sess.Download.Filename)
	if err := merger.Merge(partPaths, mergedPath); err != nil {
		sess.Status = domain.SessionFailed
		_ = c.store.UpdateSession(ctx, sess)
		return err
	}

	if err := finalizer.Finalize(mergedPath, sess.Download.Destination); err != nil {
		sess.Status = domain.SessionFailed
		_ = c.store.UpdateSession(ctx, sess)
		return err
	}
	finalizer.CleanupStaging(sess.Download.StagingDir)

	sess.Status = domain.SessionCompleted
	sess.Stats.Downloaded = sess.Stats.Total
	sess.UpdatedAt = time.Now()
	return c.store.UpdateSession(ctx, sess)
}

// aggregate drains progress deltas into sess.Stats, logging and persisting
// a snapshot on a fixed cadence (spec §4.7), until progressCh is closed.
func (c *Coordinator) aggregate(sess *domain.Session, progressCh <-chan domain.ProgressDelta, done chan<- struct{}) {
	defer close(done)

	snapshotTicker := time.NewTicker(c.cfg.SnapshotInterval)
	defer snapshotTicker.Stop()
	speedTicker := time.NewTicker(c.cfg.SpeedInterval)
	defer speedTicker.Stop()

	var lastDownloaded int64
	lastSample := time.Now()

	for {
		select {
		case delta, ok := <-progressCh:
			if !ok {
				return
			}
			sess.Stats.Downloaded += delta.Bytes

		case <-speedTicker.C:
			elapsed := time.Since(lastSample).Seconds()
			if elapsed > 0 {
				sess.Stats.SpeedBytesPerSec = float64(sess.Stats.Downloaded-lastDownloaded) / elapsed
			}
			lastDownloaded = sess.Stats.Downloaded
			lastSample = time.Now()
			if sess.Stats.Total >= 0 && sess.Stats.SpeedBytesPerSec > 0 {
				remaining := sess.Stats.Total - sess.Stats.Downloaded
				sess.Stats.ETASeconds = float64(remaining) / sess.Stats.SpeedBytesPerSec
			}
			c.logger.Progress(sess.ID, sess.Stats.Downloaded, sess.Stats.Total, sess.Stats.SpeedBytesPerSec)

		case <-snapshotTicker.C:
			sess.UpdatedAt = time.Now()
			if err := c.store.UpdateSession(context.Background(), sess); err != nil {
				c.logger.Error("failed to snapshot session %s: %v", sess.ID, err)
			}
		}
	}
}

func allSegmentsComplete(sess *domain.Session) bool {
	for _, seg := range sess.Segments {
		if !seg.Complete {
			return false
		}
	}
	return true
}

// filenameFromURL derives a filename from the URL path when neither the
// caller nor the server suggests one (spec §4.1).
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	name := filepath.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}
