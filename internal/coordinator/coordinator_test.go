package coordinator

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fetchd/fetchd/internal/domain"
	"github.com/fetchd/fetchd/internal/httpclient"
	"github.com/fetchd/fetchd/internal/logging"
)

// fakeStore is an in-memory store.Store for exercising the coordinator
// without a real database, grounded on the teacher's test doubles for
// app.Store in its engine tests.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newFakeStore() *fakeStore { return &fakeStore{sessions: make(map[string]*domain.Session)} }

func (f *fakeStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sess.ID] = sess
	return nil
}
func (f *fakeStore) UpdateSession(ctx context.Context, sess *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sess.ID] = sess
	return nil
}
func (f *fakeStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id], nil
}
func (f *fakeStore) ListSessions(ctx context.Context, status domain.SessionStatus) ([]*domain.Session, error) {
	return nil, nil
}
func (f *fakeStore) ListSessionsByURL(ctx context.Context, url string) ([]*domain.Session, error) {
	return nil, nil
}
func (f *fakeStore) DeleteSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}
func (f *fakeStore) CleanupSessions(ctx context.Context, olderThan time.Time) error { return nil }

func (f *fakeStore) SaveQueueItem(ctx context.Context, item *domain.QueueItem) error { return nil }
func (f *fakeStore) GetQueueItem(ctx context.Context, id string) (*domain.QueueItem, error) {
	return nil, nil
}
func (f *fakeStore) FindByPrefix(ctx context.Context, prefix string) (*domain.QueueItem, error) {
	return nil, nil
}
func (f *fakeStore) ListQueueItems(ctx context.Context, status domain.QueueItemStatus) ([]*domain.QueueItem, error) {
	return nil, nil
}
func (f *fakeStore) GetActiveQueueItems(ctx context.Context) ([]*domain.QueueItem, error) {
	return nil, nil
}
func (f *fakeStore) ResetStuckQueueItems(ctx context.Context, newStatus domain.QueueItemStatus, oldStatuses ...domain.QueueItemStatus) error {
	return nil
}
func (f *fakeStore) DeleteQueueItem(ctx context.Context, id string) error { return nil }

func (f *fakeStore) SetSetting(ctx context.Context, section, key string, value interface{}) error {
	return nil
}
func (f *fakeStore) GetSetting(ctx context.Context, section, key string) (*domain.Setting, error) {
	return nil, nil
}
func (f *fakeStore) ListSettings(ctx context.Context, section string) ([]domain.Setting, error) {
	return nil, nil
}
func (f *fakeStore) DeleteSetting(ctx context.Context, section, key string) error { return nil }

func (f *fakeStore) Close() error { return nil }

func newTestCoordinator(t *testing.T, st *fakeStore) *Coordinator {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	logger, err := logging.New(logPath, logging.LevelError, false)
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	client := httpclient.New(httpclient.DefaultConfig())
	cfg := DefaultConfig()
	cfg.SnapshotInterval = 50 * time.Millisecond
	cfg.SpeedInterval = 20 * time.Millisecond
	cfg.Streamer.MaxRetries = 1
	cfg.Streamer.RetryDelay = 10 * time.Millisecond
	cfg.Streamer.MaxDelay = 20 * time.Millisecond
	return New(client, st, logger, cfg)
}

func TestPlanAndRunCompletesDownload(t *testing.T) {
	body := strings.Repeat("x", 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "5000")
			return
		}
		http.ServeContent(w, r, "file.bin", time.Now(), strings.NewReader(body))
	}))
	defer srv.Close()

	st := newFakeStore()
	c := newTestCoordinator(t, st)
	tmp := t.TempDir()
	destDir := filepath.Join(tmp, "downloads")
	stagingDir := filepath.Join(tmp, "staging")

	sess, err := c.Plan(context.Background(), "sess-1", srv.URL, destDir, stagingDir, domain.Overrides{Filename: "file.bin", MaxConnections: 3}, 3)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(sess.Segments) == 0 {
		t.Fatal("expected at least one segment")
	}
	if err := st.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := c.Run(context.Background(), sess, &PauseFlag{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sess.Status != domain.SessionCompleted {
		t.Fatalf("expected completed status, got %v", sess.Status)
	}
	data, err := os.ReadFile(sess.Download.Destination)
	if err != nil {
		t.Fatalf("reading destination: %v", err)
	}
	if string(data) != body {
		t.Fatalf("merged content mismatch: got %d bytes, want %d", len(data), len(body))
	}
	if _, err := os.Stat(sess.Download.StagingDir); !os.IsNotExist(err) {
		t.Fatalf("expected staging dir removed after finalize")
	}
}

// throttledReader sleeps briefly between reads so a streamer fanned out
// against it has several chances to observe a pause request mid-transfer.
type throttledReader struct {
	r io.Reader
}

func (t throttledReader) Read(p []byte) (int, error) {
	time.Sleep(2 * time.Millisecond)
	if len(p) > 4096 {
		p = p[:4096]
	}
	return t.r.Read(p)
}

func TestRunStopsOnPause(t *testing.T) {
	body := strings.Repeat("y", 2_000_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "2000000")
			return
		}
		w.WriteHeader(http.StatusOK)
		io.Copy(w, throttledReader{r: strings.NewReader(body)})
	}))
	defer srv.Close()

	st := newFakeStore()
	c := newTestCoordinator(t, st)
	tmp := t.TempDir()
	destDir := filepath.Join(tmp, "downloads")
	stagingDir := filepath.Join(tmp, "staging")

	sess, err := c.Plan(context.Background(), "sess-2", srv.URL, destDir, stagingDir, domain.Overrides{Filename: "big.bin", MaxConnections: 1}, 1)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	flag := &PauseFlag{}
	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Request()
	}()

	if err := c.Run(context.Background(), sess, flag); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sess.Status != domain.SessionPaused && sess.Status != domain.SessionCompleted {
		t.Fatalf("expected paused (or a lucky completion), got %v", sess.Status)
	}
}

func TestPrepareResumeDetectsMissingStaging(t *testing.T) {
	st := newFakeStore()
	c := newTestCoordinator(t, st)
	sess := &domain.Session{
		ID:        "sess-3",
		UpdatedAt: time.Now(),
		Download:  domain.Download{StagingDir: filepath.Join(t.TempDir(), "does-not-exist")},
	}
	err := c.PrepareResume(sess, 0)
	if err == nil {
		t.Fatal("expected error for missing staging dir")
	}
	if domain.KindOf(err) != domain.KindState {
		t.Fatalf("expected KindState, got %v", domain.KindOf(err))
	}
}

func TestPrepareResumeRemeasuresPartFiles(t *testing.T) {
	st := newFakeStore()
	c := newTestCoordinator(t, st)
	stagingDir := t.TempDir()
	partPath := filepath.Join(stagingDir, "file.bin.part0")
	if err := os.WriteFile(partPath, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sess := &domain.Session{
		ID:        "sess-4",
		UpdatedAt: time.Now(),
		Download:  domain.Download{StagingDir: stagingDir},
		Segments: []domain.Segment{
			{Index: 0, Start: 0, End: 4, PartPath: partPath},
		},
	}
	if err := c.PrepareResume(sess, 0); err != nil {
		t.Fatalf("PrepareResume: %v", err)
	}
	if sess.Segments[0].BytesPersisted != 5 {
		t.Fatalf("expected BytesPersisted=5, got %d", sess.Segments[0].BytesPersisted)
	}
	if !sess.Segments[0].Complete {
		t.Fatalf("expected segment marked complete within tolerance")
	}
	if sess.Status != domain.SessionActive {
		t.Fatalf("expected session reactivated, got %v", sess.Status)
	}
}

func TestCheckDiskSpaceRejectsUnreasonableRequirement(t *testing.T) {
	dir := t.TempDir()
	err := checkDiskSpace(dir, 1<<62)
	if err == nil {
		t.Fatal("expected an error for an impossibly large requirement")
	}
	if domain.KindOf(err) != domain.KindSpace {
		t.Fatalf("expected KindSpace, got %v", domain.KindOf(err))
	}
}

func TestCheckDiskSpaceAllowsSmallRequirement(t *testing.T) {
	dir := t.TempDir()
	if err := checkDiskSpace(dir, 1024); err != nil {
		t.Fatalf("expected a tiny requirement to fit: %v", err)
	}
}

func TestPlanFailsOnInsufficientSpace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", "9223372036854775000")
	}))
	defer srv.Close()

	st := newFakeStore()
	c := newTestCoordinator(t, st)
	tmp := t.TempDir()

	_, err := c.Plan(context.Background(), "sess-5", srv.URL,
		filepath.Join(tmp, "downloads"), filepath.Join(tmp, "staging"),
		domain.Overrides{Filename: "huge.bin", MaxConnections: 1}, 1)
	if err == nil {
		t.Fatal("expected Plan to fail on an impossibly large content length")
	}
	if domain.KindOf(err) != domain.KindSpace {
		t.Fatalf("expected KindSpace, got %v", domain.KindOf(err))
	}
}
