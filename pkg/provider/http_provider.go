package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// HTTPProvider fetches http/https URLs with connection pooling and a
// bounded retry loop, grounded on the teacher's provider HTTP client: a
// pooled *http.Client plus exponential backoff over retryable failures.
type HTTPProvider struct {
	client     *http.Client
	maxRetries int
}

// NewHTTPProvider builds an HTTPProvider. timeout bounds a single attempt;
// maxRetries bounds retry attempts on 5xx/transport errors.
func NewHTTPProvider(timeout time.Duration, maxRetries int) *HTTPProvider {
	transport := &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &HTTPProvider{
		client:     &http.Client{Transport: transport, Timeout: timeout},
		maxRetries: maxRetries,
	}
}

// Schemes implements Provider.
func (p *HTTPProvider) Schemes() []string { return []string{"http", "https"} }

// Fetch implements Provider, retrying 5xx/transport failures with
// exponential backoff and honoring ctx cancellation between attempts.
func (p *HTTPProvider) Fetch(ctx context.Context, url, destPath string, auth AuthCallback) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return Result{}, &ziperr.IOError{Path: filepath.Dir(destPath), Detail: "create destination directory", Cause: err}
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return Result{}, ziperr.Cancelled
			case <-time.After(backoff):
			}
		}

		n, err := p.attempt(ctx, url, destPath, auth)
		if err == nil {
			return Result{Path: destPath, Bytes: n}, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			os.Remove(destPath)
			return Result{}, ziperr.Cancelled
		}
		if !retryable(err) {
			os.Remove(destPath)
			return Result{}, err
		}
		slog.Warn("retrying fetch", "url", url, "attempt", attempt+1, "error", err)
	}

	os.Remove(destPath)
	return Result{}, lastErr
}

func (p *HTTPProvider) attempt(ctx context.Context, url, destPath string, auth AuthCallback) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &ziperr.NetworkError{URL: url, Kind: ziperr.NetworkResponseError, Cause: err}
	}
	if auth != nil {
		if user, pass, ok := auth(url); ok {
			req.SetBasicAuth(user, pass)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, &ziperr.NetworkError{URL: url, Kind: ziperr.NetworkTempUnavailable, Cause: err}
	}
	defer resp.Body.Close()

	if err := statusToError(url, resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return 0, err
	}

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, &ziperr.IOError{Path: destPath, Detail: "create destination file", Cause: err}
	}
	defer f.Close()

	n, err := copyWithTimeout(ctx, f, resp.Body)
	if err != nil {
		return n, &ziperr.IOError{Path: destPath, Detail: "write response body", Cause: err}
	}
	return n, nil
}

func statusToError(url string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return &ziperr.NetworkError{URL: url, Kind: ziperr.NetworkNotFound}
	case status == http.StatusForbidden:
		return &ziperr.NetworkError{URL: url, Kind: ziperr.NetworkForbidden}
	case status == http.StatusUnauthorized:
		return &ziperr.NetworkError{URL: url, Kind: ziperr.NetworkUnauthorized}
	case status >= 500:
		return &ziperr.NetworkError{URL: url, Kind: ziperr.NetworkTempUnavailable, Cause: fmt.Errorf("status %d", status)}
	default:
		return &ziperr.NetworkError{URL: url, Kind: ziperr.NetworkResponseError, Cause: fmt.Errorf("status %d", status)}
	}
}

func retryable(err error) bool {
	var netErr *ziperr.NetworkError
	if ne, ok := err.(*ziperr.NetworkError); ok {
		netErr = ne
	}
	if netErr == nil {
		return false
	}
	return netErr.Kind == ziperr.NetworkTempUnavailable
}
