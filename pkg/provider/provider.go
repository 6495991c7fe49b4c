// Package provider implements the Provider abstraction PackageProvider and
// MirrorList fetch through: retrieving a URL (http/https/file) into a local
// file, with retry/backoff and an auth callback, synchronously or through
// the workflow dispatcher.
package provider

import (
	"context"
	"io"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// AuthCallback supplies credentials for a URL when a request needs them. It
// mirrors the "auth callback" spec.md §4.5 mentions for mirrorlist fetches
// and is reused by package/metadata downloads.
type AuthCallback func(url string) (username, password string, ok bool)

// Result is what a successful fetch produces: the local file path it wrote
// to plus the number of bytes transferred.
type Result struct {
	Path  string
	Bytes int64
}

// Provider is the narrow interface PackageProvider, MirrorList, and
// RepoManager use to retrieve bytes from a URL into a destination path.
// Implementations decide how to interpret the URL scheme.
type Provider interface {
	// Fetch retrieves url into destPath, creating parent directories as
	// needed. On failure, any partial destPath is removed.
	Fetch(ctx context.Context, url, destPath string, auth AuthCallback) (Result, error)

	// Schemes reports the URL scheme(s) this provider handles, for registry
	// lookups (e.g. "http", "https", "file").
	Schemes() []string
}

// Registry dispatches Fetch to the Provider registered for a URL's scheme.
type Registry struct {
	byScheme map[string]Provider
}

// NewRegistry builds a Registry from providers, indexing each by every
// scheme it reports.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byScheme: map[string]Provider{}}
	for _, p := range providers {
		for _, scheme := range p.Schemes() {
			r.byScheme[scheme] = p
		}
	}
	return r
}

// Fetch resolves the provider for scheme and delegates to it.
func (r *Registry) Fetch(ctx context.Context, scheme, url, destPath string, auth AuthCallback) (Result, error) {
	p, ok := r.byScheme[scheme]
	if !ok {
		return Result{}, &ziperr.NetworkError{URL: url, Kind: ziperr.NetworkUnsupportedScheme}
	}
	return p.Fetch(ctx, url, destPath, auth)
}

// copyWithTimeout is a small helper shared by provider implementations that
// need to bound a plain io.Copy by ctx cancellation via a done channel,
// since io.Copy itself does not accept a context.
func copyWithTimeout(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	type result struct {
		n   int64
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := io.Copy(dst, src)
		done <- result{n, err}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		return r.n, r.err
	}
}
