// SPDX-License-Identifier: AGPL-3.0-or-later

// Package archive implements C1: downloading an application archive and
// unpacking it into a destination directory, guarding against path
// traversal in the archive entries.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Fetch downloads the resource at url to a temporary file and extracts it
// into destDir, which the caller guarantees is a fresh, empty directory.
// The archive format is sniffed from the response content (and, failing
// that, the URL path), so callers don't need to carry format information.
func Fetch(ctx context.Context, url, destDir string) error {
	tmpFile, err := download(ctx, url)
	if err != nil {
		return err
	}
	defer os.Remove(tmpFile) //nolint:errcheck // best effort cleanup

	return ExtractFile(tmpFile, filepath.Base(url), destDir)
}

// download streams url into a temp file and returns its path. The caller
// is responsible for removing it.
func download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", newFetchError(CategoryNetwork, "failed to build request", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", newFetchError(CategoryTimeout, "fetch timed out", err)
		}
		return "", newFetchError(CategoryNetwork, "request failed", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best effort cleanup

	if resp.StatusCode != http.StatusOK {
		return "", newFetchError(CategoryHTTP, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	tmp, err := os.CreateTemp("", "slugrunner-archive-*")
	if err != nil {
		return "", newFetchError(CategoryIO, "failed to create temp file", err)
	}
	defer tmp.Close() //nolint:errcheck // best effort cleanup

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck // best effort cleanup
		if errors.Is(err, context.DeadlineExceeded) {
			return "", newFetchError(CategoryTimeout, "fetch timed out while streaming body", err)
		}
		return "", newFetchError(CategoryIO, "failed to write archive to disk", err)
	}

	return tmp.Name(), nil
}
