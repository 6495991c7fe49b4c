package mirrorlist

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/opensuse-zypp/zyppcore/pkg/provider"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// Fetcher retrieves and caches a repo's mirror list, falling back to the
// repo's own baseUrls when the mirror list is unavailable.
type Fetcher struct {
	Registry     *provider.Registry
	RefreshDelay time.Duration
}

// NewFetcher builds a Fetcher.
func NewFetcher(registry *provider.Registry, refreshDelay time.Duration) *Fetcher {
	return &Fetcher{Registry: registry, RefreshDelay: refreshDelay}
}

// Resolve returns the ordered URL list for a repo: the cached/refreshed
// mirror list when mirrorListURL is set, else baseUrls directly.
func (f *Fetcher) Resolve(ctx context.Context, metadataDir, mirrorListURL string, baseURLs []string, scheme string, auth provider.AuthCallback) ([]string, error) {
	if mirrorListURL == "" {
		return baseURLs, nil
	}

	if !NeedsRefresh(metadataDir, mirrorListURL, f.RefreshDelay) {
		urls, _, exists, err := Load(metadataDir)
		if err == nil && exists {
			return urls, nil
		}
	}

	urls, err := f.refresh(ctx, metadataDir, mirrorListURL, scheme, auth)
	if err != nil {
		if len(baseURLs) > 0 {
			return baseURLs, nil
		}
		if len(urls) == 0 {
			return nil, &ziperr.ParseError{Path: mirrorListURL, Detail: "mirror list unavailable and no baseurls configured", Cause: err}
		}
	}
	if len(urls) == 0 && len(baseURLs) > 0 {
		return baseURLs, nil
	}
	return urls, nil
}

func (f *Fetcher) refresh(ctx context.Context, metadataDir, mirrorListURL, scheme string, auth provider.AuthCallback) ([]string, error) {
	tmp := filepath.Join(metadataDir, cacheFileName+".download")
	defer os.Remove(tmp)

	if _, err := f.Registry.Fetch(ctx, scheme, mirrorListURL, tmp, auth); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, &ziperr.IOError{Path: tmp, Detail: "read downloaded mirror list", Cause: err}
	}

	parsed, err := Parse(data)
	if err != nil {
		return nil, err
	}
	urls := FilterAndNormalize(parsed)

	if err := Store(metadataDir, mirrorListURL, urls); err != nil {
		return nil, err
	}
	return urls, nil
}
