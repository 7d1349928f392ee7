package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fetchd/fetchd/internal/domain"
)

func TestProbeReportsSizeAndRangeSupport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "12345")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Disposition", `attachment; filename="movie.mp4"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	res, err := c.Probe(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.TotalBytes != 12345 {
		t.Errorf("TotalBytes = %d, want 12345", res.TotalBytes)
	}
	if !res.AcceptsRanges {
		t.Error("expected AcceptsRanges = true")
	}
	if res.SuggestedFilename != "movie.mp4" {
		t.Errorf("SuggestedFilename = %q, want movie.mp4", res.SuggestedFilename)
	}
}

func TestProbeUnauthorizedIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	_, err := c.Probe(context.Background(), srv.URL, nil)
	if domain.KindOf(err) != domain.KindAuth {
		t.Fatalf("expected KindAuth, got %v (%v)", domain.KindOf(err), err)
	}
}

func TestFetchRangeSendsRangeHeaderAndReturnsPartialContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=10-19" {
			t.Errorf("Range header = %q, want bytes=10-19", got)
		}
		if got := r.Header.Get("Accept-Encoding"); got != "identity" {
			t.Errorf("Accept-Encoding = %q, want identity", got)
		}
		w.Header().Set("Content-Range", "bytes 10-19/100")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	body, err := c.FetchRange(context.Background(), srv.URL, 10, 19, nil)
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	defer body.Close()

	data, _ := io.ReadAll(body)
	if string(data) != "0123456789" {
		t.Errorf("body = %q", data)
	}
}

func TestFetchRangeNotSatisfiableIsRangeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	_, err := c.FetchRange(context.Background(), srv.URL, 0, 9, nil)
	if domain.KindOf(err) != domain.KindRange {
		t.Fatalf("expected KindRange, got %v (%v)", domain.KindOf(err), err)
	}
}

func TestFetchRangeServerErrorIsRetryableNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	_, err := c.FetchRange(context.Background(), srv.URL, 0, 9, nil)
	var de *domain.Error
	if !strings.Contains(err.Error(), "network") {
		t.Fatalf("expected network error text, got %v", err)
	}
	de, _ = err.(*domain.Error)
	if de == nil || !de.Retryable() {
		t.Fatalf("expected a retryable *domain.Error, got %v", err)
	}
}
