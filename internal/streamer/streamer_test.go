package streamer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/fetchd/fetchd/internal/domain"
	"github.com/fetchd/fetchd/internal/httpclient"
)

func TestRunDownloadsFullSegment(t *testing.T) {
	const payload = "0123456789abcdefghij" // 20 bytes
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	dir := t.TempDir()
	seg := &domain.Segment{Index: 0, Start: 0, End: 19, PartPath: filepath.Join(dir, "out.part0")}

	s := New(httpclient.New(httpclient.DefaultConfig()), DefaultConfig())
	progress := make(chan domain.ProgressDelta, 16)
	done, err := s.Run(context.Background(), srv.URL, nil, seg, Hooks{Progress: progress})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !done || !seg.Complete {
		t.Fatalf("expected segment complete, got done=%v seg=%+v", done, seg)
	}

	data, err := os.ReadFile(seg.PartPath)
	if err != nil {
		t.Fatalf("reading part file: %v", err)
	}
	if string(data) != payload {
		t.Errorf("part file contents = %q, want %q", data, payload)
	}
	if seg.BytesPersisted != int64(len(payload)) {
		t.Errorf("BytesPersisted = %d, want %d", seg.BytesPersisted, len(payload))
	}
}

func TestRunRetriesAfterServerErrorThenSucceeds(t *testing.T) {
	const payload = "hello world"
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	dir := t.TempDir()
	seg := &domain.Segment{Index: 0, Start: 0, End: int64(len(payload) - 1), PartPath: filepath.Join(dir, "out.part0")}

	cfg := DefaultConfig()
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.MaxDelay = 50 * time.Millisecond
	s := New(httpclient.New(httpclient.DefaultConfig()), cfg)

	done, err := s.Run(context.Background(), srv.URL, nil, seg, Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !done {
		t.Fatal("expected eventual completion after retry")
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestRunResumesFromExistingPartFile(t *testing.T) {
	const full = "0123456789"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		// Expect a resume request starting at byte 5.
		if rangeHeader != "bytes=5-9" {
			t.Errorf("Range header = %q, want bytes=5-9", rangeHeader)
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(full[5:]))
	}))
	defer srv.Close()

	dir := t.TempDir()
	partPath := filepath.Join(dir, "out.part0")
	if err := os.WriteFile(partPath, []byte(full[:5]), 0644); err != nil {
		t.Fatal(err)
	}

	seg := &domain.Segment{Index: 0, Start: 0, End: 9, PartPath: partPath, BytesPersisted: 5}
	s := New(httpclient.New(httpclient.DefaultConfig()), DefaultConfig())

	done, err := s.Run(context.Background(), srv.URL, nil, seg, Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !done {
		t.Fatal("expected completion")
	}

	data, _ := os.ReadFile(partPath)
	if string(data) != full {
		t.Errorf("part file = %q, want %q", data, full)
	}
}

func TestRunStopsCooperativelyOnPause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		flusher, _ := w.(http.Flusher)
		for i := 0; i < 5; i++ {
			w.Write([]byte(strconv.Itoa(i)))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	seg := &domain.Segment{Index: 0, Start: 0, End: 4, PartPath: filepath.Join(dir, "out.part0")}
	s := New(httpclient.New(httpclient.DefaultConfig()), DefaultConfig())

	paused := true
	done, err := s.Run(context.Background(), srv.URL, nil, seg, Hooks{Paused: func() bool { return paused }})
	if err != nil {
		t.Fatalf("Run returned error on pause: %v", err)
	}
	if done || seg.Complete {
		t.Fatalf("expected pause without completion, got done=%v seg.Complete=%v", done, seg.Complete)
	}
	if !seg.Paused {
		t.Error("expected seg.Paused = true")
	}
}
