// Package httpclient implements C1: a HEAD probe for size/range support and
// a ranged GET returning a streaming body. Grounded on TeraFetch's
// utils/http.go HTTPClient (transport tuning, timeouts, retry loop) adapted
// to spec §4.1's generic-HTTP contract rather than Terabox-specific headers.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fetchd/fetchd/internal/domain"
)

// Config tunes the underlying transport and timeouts. ConnectTimeout bounds
// the TCP dial and the TLS handshake. ReadTimeout is not applied to
// individual reads: the only use of it is the client's total per-request
// timeout, set to three times its value, so no separate inter-byte idle
// timeout exists.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	UserAgent      string
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 15 * time.Second,
		ReadTimeout:    30 * time.Second,
		UserAgent:      "fetchd/1.0",
	}
}

// Client is C1. One Client may be shared across a download's segments (spec
// §2: "starts one C2 per segment sharing an instance of C1 per segment (or
// pooled)") since http.Client and its Transport are safe for concurrent use.
type Client struct {
	http *http.Client
	cfg  Config
}

func New(cfg Config) *Client {
	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ReadTimeout * 3, // generous total-request timeout
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		cfg: cfg,
	}
}

// ProbeResult is C1's probe() return value (spec §4.1).
type ProbeResult struct {
	Status            int
	FinalURL          string
	TotalBytes        int64 // -1 when Content-Length is absent
	AcceptsRanges     bool
	ContentType       string
	SuggestedFilename string
	ETag              string
	LastModified      string
}

// Probe performs the HEAD request, following redirects, and classifies
// non-2xx responses into the error taxonomy (spec §4.1).
func (c *Client) Probe(ctx context.Context, url string, headers map[string]string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, "probe", err)
	}
	applyHeaders(req, headers, c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.KindNetwork, "probe", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("probe", resp.StatusCode); err != nil {
		return nil, err
	}

	result := &ProbeResult{
		Status:        resp.StatusCode,
		FinalURL:      resp.Request.URL.String(),
		TotalBytes:    -1,
		AcceptsRanges: strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes"),
		ContentType:   resp.Header.Get("Content-Type"),
		ETag:          resp.Header.Get("ETag"),
		LastModified:  resp.Header.Get("Last-Modified"),
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			result.TotalBytes = n
		}
	}
	result.SuggestedFilename = filenameFromContentDisposition(resp.Header.Get("Content-Disposition"))

	return result, nil
}

// FetchRange sends Range: bytes=start-end (or start- when end < 0) and
// returns the lazy streaming body on 200/206 (spec §4.1). The caller must
// close the returned body.
func (c *Client) FetchRange(ctx context.Context, url string, start, end int64, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, "fetch_range", err)
	}
	applyHeaders(req, headers, c.cfg.UserAgent)
	req.Header.Set("Range", rangeHeader(start, end))
	// No compression on range fetches so byte offsets stay meaningful (spec §4.1, §6).
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.KindNetwork, "fetch_range", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return resp.Body, nil
	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		return nil, domain.NewError(domain.KindRange, "fetch_range", fmt.Errorf("416 range not satisfiable"))
	case http.StatusUnauthorized:
		resp.Body.Close()
		return nil, domain.NewError(domain.KindAuth, "fetch_range", fmt.Errorf("401 unauthorized"))
	default:
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, domain.NewError(domain.KindNetwork, "fetch_range", fmt.Errorf("server error %d", resp.StatusCode))
		}
		return nil, domain.NewError(domain.KindProtocol, "fetch_range", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

func rangeHeader(start, end int64) string {
	if end < 0 {
		return fmt.Sprintf("bytes=%d-", start)
	}
	return fmt.Sprintf("bytes=%d-%d", start, end)
}

func applyHeaders(req *http.Request, headers map[string]string, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func classifyStatus(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return domain.NewError(domain.KindAuth, op, fmt.Errorf("401 unauthorized"))
	case status >= 500:
		return domain.NewError(domain.KindNetwork, op, fmt.Errorf("server error %d", status))
	default:
		return domain.NewError(domain.KindProtocol, op, fmt.Errorf("unexpected status %d", status))
	}
}

// filenameFromContentDisposition derives a suggested filename from quoted
// and unquoted Content-Disposition forms (spec §4.1).
func filenameFromContentDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	if name, ok := params["filename"]; ok {
		return name
	}
	return ""
}
