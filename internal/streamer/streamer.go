// Package streamer implements C2: driving one segment to completion,
// appending bytes to its part-file with retry/resume. Grounded on
// internal/engine/worker.go's processSegment (retry/backoff, progress
// reporting) and internal/engine/file_writer.go's per-handle write/sync/close
// discipline, generalized from "many segments into one shared file via
// WriteAt" (the teacher's NZB model) to "one segment, one dedicated
// part-file" (spec §4.2, §4.4).
package streamer

import (
	"context"
	"io"
	"math"
	"os"
	"time"

	"github.com/fetchd/fetchd/internal/domain"
	"github.com/fetchd/fetchd/internal/httpclient"
)

// Config tunes the streamer's chunk size and retry policy (spec §6:
// chunk_size, max_retries, retry_delay).
type Config struct {
	ChunkSize  int
	MaxRetries int
	RetryDelay time.Duration // base linear-backoff interval
	MaxDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:  1 << 20, // 1 MiB, per spec §4.2 "order of 1-2 MiB"
		MaxRetries: 5,
		RetryDelay: 2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Hooks let the coordinator observe progress and cooperative pause/cancel
// without the streamer holding a back-reference to the coordinator (Design
// Notes: message passing over a bounded channel, not a shared-mutex object).
type Hooks struct {
	Progress chan<- domain.ProgressDelta
	Paused   func() bool
}

// Streamer drives one segment to completion (C2).
type Streamer struct {
	client *httpclient.Client
	cfg    Config
}

func New(client *httpclient.Client, cfg Config) *Streamer {
	return &Streamer{client: client, cfg: cfg}
}

// Run drives seg to completion, mutating its BytesPersisted/Complete/
// RetryCount fields in place and emitting ProgressDelta messages through
// hooks.Progress. It returns (false, nil) if cooperatively paused, (true,
// nil) on completion, and a non-nil error on unrecoverable failure (spec
// §4.2 steps 1-6).
func (s *Streamer) Run(ctx context.Context, url string, headers map[string]string, seg *domain.Segment, hooks Hooks) (bool, error) {
	for {
		if seg.Complete {
			return true, nil
		}

		// Step 1: closed range already satisfied.
		if seg.End >= 0 && seg.EffectiveStart() > seg.End {
			seg.Complete = true
			return true, nil
		}

		done, paused, err := s.attempt(ctx, url, headers, seg, hooks)
		if paused {
			seg.Paused = true
			return false, nil
		}
		if err == nil && done {
			seg.Complete = true
			return true, nil
		}

		de, _ := err.(*domain.Error)
		if de == nil || !de.Retryable() {
			return false, err
		}

		seg.RetryCount++
		if seg.RetryCount > s.cfg.MaxRetries {
			return false, domain.NewError(domain.KindNetwork, "streamer", err)
		}

		delay := backoff(s.cfg.RetryDelay, s.cfg.MaxDelay, seg.RetryCount)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// attempt performs one fetch+write pass starting from the segment's current
// EffectiveStart, returning done=true if the segment reached completion
// during this attempt.
func (s *Streamer) attempt(ctx context.Context, url string, headers map[string]string, seg *domain.Segment, hooks Hooks) (done bool, paused bool, err error) {
	body, err := s.client.FetchRange(ctx, url, seg.EffectiveStart(), seg.End, headers)
	if err != nil {
		return false, false, err
	}
	defer body.Close()

	f, err := openPartFile(seg.PartPath, seg.BytesPersisted)
	if err != nil {
		return false, false, domain.NewError(domain.KindFilesystem, "streamer", err)
	}
	defer f.Close()

	buf := make([]byte, s.cfg.ChunkSize)
	for {
		if hooks.Paused != nil && hooks.Paused() {
			return false, true, nil
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return false, false, domain.NewError(domain.KindFilesystem, "streamer", werr)
			}
			seg.BytesPersisted += int64(n)
			if hooks.Progress != nil {
				select {
				case hooks.Progress <- domain.ProgressDelta{SegmentIndex: seg.Index, Bytes: int64(n)}:
				case <-ctx.Done():
					return false, false, ctx.Err()
				}
			}
		}

		if rerr == io.EOF {
			if ferr := f.Sync(); ferr != nil {
				return false, false, domain.NewError(domain.KindFilesystem, "streamer", ferr)
			}
			if seg.End < 0 {
				return true, false, nil // open-ended: EOF implies completion
			}
			if seg.MeetsCompletionTolerance() {
				return true, false, nil
			}
			// Short read within retry budget: loop around attempt() again
			// from the new EffectiveStart via the caller's retry path.
			return false, false, domain.NewError(domain.KindNetwork, "streamer", io.ErrUnexpectedEOF)
		}
		if rerr != nil {
			return false, false, domain.NewError(domain.KindNetwork, "streamer", rerr)
		}
	}
}

// openPartFile opens the part-file in append mode when resuming (offset >
// 0), or truncates it on a fresh start (spec §4.4).
func openPartFile(path string, offset int64) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// backoff computes a linear (not exponential) base*attempt delay capped at
// maxDelay, per spec §4.2 step 6 ("linear-backoff interval (base x attempt,
// capped)") -- deliberately not the coordinator-level exponential backoff
// the teacher's worker.go uses for segment-job retries, since spec is
// explicit about linear here.
func backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	d := time.Duration(math.Min(float64(base)*float64(attempt), float64(maxDelay)))
	return d
}
