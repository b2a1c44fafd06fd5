// SPDX-License-Identifier: AGPL-3.0-or-later

package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte("PK\x03\x04")
)

// ExtractFile unpacks the archive at path into destDir. The format is
// sniffed from the file's leading bytes, with the name (typically the
// source URL's base name) used only as a tie-breaker for ambiguous or
// empty files. destDir must already exist.
func ExtractFile(path, name, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return newFetchError(CategoryIO, "failed to open downloaded archive", err)
	}
	defer f.Close() //nolint:errcheck // best effort cleanup

	header := make([]byte, 4)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return newFetchError(CategoryIO, "failed to read archive header", err)
	}
	header = header[:n]

	switch {
	case hasMagic(header, gzipMagic):
		return extractTarGz(f, destDir)
	case hasMagic(header, zipMagic):
		return extractZip(path, destDir)
	case strings.HasSuffix(name, ".zip"):
		return extractZip(path, destDir)
	default:
		// Default to tar.gz, the Heroku-slug-style convention the manifest
		// layout (C2) expects; rewind first since we consumed the header.
		return extractTarGz(f, destDir)
	}
}

func hasMagic(header, magic []byte) bool {
	if len(header) < len(magic) {
		return false
	}
	for i, b := range magic {
		if header[i] != b {
			return false
		}
	}
	return true
}

// extractTarGz streams f (already positioned past the 4-byte sniff read)
// through gzip and tar, guarding every entry against path traversal.
func extractTarGz(f *os.File, destDir string) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return newFetchError(CategoryIO, "failed to rewind archive", err)
	}

	gzReader, err := gzip.NewReader(f)
	if err != nil {
		return newFetchError(CategoryFormat, "not a valid gzip stream", err)
	}
	defer gzReader.Close() //nolint:errcheck // best effort cleanup

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return newFetchError(CategoryFormat, "failed to read tar entry", err)
		}

		destPath, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0o750); err != nil {
				return newFetchError(CategoryIO, "failed to create directory "+header.Name, err)
			}
		case tar.TypeReg:
			if err := writeEntry(destPath, tarReader, header.Mode); err != nil {
				return err
			}
		default:
			// Symlinks, devices, etc. are not meaningful inside an
			// extracted application tree; skip rather than fail the
			// whole fetch over an unsupported entry type.
		}
	}
}

// extractZip opens path as a zip archive, guarding every entry against
// path traversal.
func extractZip(path, destDir string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return newFetchError(CategoryFormat, "not a valid zip archive", err)
	}
	defer zr.Close() //nolint:errcheck // best effort cleanup

	for _, zf := range zr.File {
		destPath, err := safeJoin(destDir, zf.Name)
		if err != nil {
			return err
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o750); err != nil {
				return newFetchError(CategoryIO, "failed to create directory "+zf.Name, err)
			}
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return newFetchError(CategoryFormat, "failed to open zip entry "+zf.Name, err)
		}
		writeErr := writeEntry(destPath, rc, zf.Mode())
		rc.Close() //nolint:errcheck // best effort cleanup
		if writeErr != nil {
			return writeErr
		}
	}
	return nil
}

// safeJoin joins destDir and entryName, rejecting any entry whose
// normalized path would land outside destDir.
func safeJoin(destDir, entryName string) (string, error) {
	destPath := filepath.Join(destDir, entryName)
	if destPath != filepath.Clean(destDir) && !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", newFetchError(CategoryPathEscape, "archive entry escapes destination: "+entryName, nil)
	}
	return destPath, nil
}

func writeEntry(destPath string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return newFetchError(CategoryIO, "failed to create parent directory for "+destPath, err)
	}

	if mode == 0 {
		mode = 0o640
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return newFetchError(CategoryIO, "failed to create "+destPath, err)
	}
	defer out.Close() //nolint:errcheck // best effort cleanup

	if _, err := io.Copy(out, r); err != nil {
		return newFetchError(CategoryIO, fmt.Sprintf("failed to write %s", destPath), err)
	}
	return nil
}
