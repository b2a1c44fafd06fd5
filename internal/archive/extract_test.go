// SPDX-License-Identifier: AGPL-3.0-or-later

package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTarGz(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestExtractFileTarGz(t *testing.T) {
	archivePath := writeTarGz(t, map[string]string{
		"Procfile":   "web: ./server",
		"bin/server": "#!/bin/sh\necho hi",
	})
	destDir := t.TempDir()

	require.NoError(t, ExtractFile(archivePath, "app.tar.gz", destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "Procfile"))
	require.NoError(t, err)
	assert.Equal(t, "web: ./server", string(data))
}

func TestExtractFileZip(t *testing.T) {
	archivePath := writeZip(t, map[string]string{
		"Procfile": "web: ./server",
	})
	destDir := t.TempDir()

	require.NoError(t, ExtractFile(archivePath, "app.zip", destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "Procfile"))
	require.NoError(t, err)
	assert.Equal(t, "web: ./server", string(data))
}

func TestExtractFileRejectsPathTraversal(t *testing.T) {
	archivePath := writeTarGz(t, map[string]string{
		"../../etc/passwd": "root:x:0:0",
	})
	destDir := t.TempDir()

	err := ExtractFile(archivePath, "evil.tar.gz", destDir)
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, CategoryPathEscape, fetchErr.Category)
}

func TestExtractFileRejectsBadFormat(t *testing.T) {
	destDir := t.TempDir()
	junkPath := filepath.Join(t.TempDir(), "junk.bin")
	require.NoError(t, os.WriteFile(junkPath, []byte("not an archive"), 0o644))

	err := ExtractFile(junkPath, "junk.bin", destDir)
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, CategoryFormat, fetchErr.Category)
}
