package provider

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// FileProvider "fetches" file:// and plain local-path URLs by copying (or
// hard-linking, when on the same device) into destPath.
type FileProvider struct{}

// NewFileProvider constructs a FileProvider.
func NewFileProvider() *FileProvider { return &FileProvider{} }

// Schemes implements Provider.
func (p *FileProvider) Schemes() []string { return []string{"file", ""} }

// Fetch implements Provider.
func (p *FileProvider) Fetch(ctx context.Context, url, destPath string, _ AuthCallback) (Result, error) {
	if ctx.Err() != nil {
		return Result{}, ziperr.Cancelled
	}

	srcPath := strings.TrimPrefix(url, "file://")
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return Result{}, &ziperr.IOError{Path: filepath.Dir(destPath), Detail: "create destination directory", Cause: err}
	}

	if err := os.Link(srcPath, destPath); err == nil {
		info, statErr := os.Stat(destPath)
		if statErr == nil {
			return Result{Path: destPath, Bytes: info.Size()}, nil
		}
	}

	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, &ziperr.NetworkError{URL: url, Kind: ziperr.NetworkNotFound, Cause: err}
		}
		return Result{}, &ziperr.IOError{Path: srcPath, Detail: "open source file", Cause: err}
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, &ziperr.IOError{Path: destPath, Detail: "create destination file", Cause: err}
	}
	defer dst.Close()

	n, err := copyWithTimeout(ctx, dst, src)
	if err != nil {
		os.Remove(destPath)
		return Result{}, &ziperr.IOError{Path: destPath, Detail: "copy file", Cause: err}
	}
	return Result{Path: destPath, Bytes: n}, nil
}
