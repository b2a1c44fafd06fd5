// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"archive/tar"
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slugrunner/agent/internal/procsup"
)

func serveTarGz(t *testing.T, procfile string) *httptest.Server {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "Procfile", Mode: 0o644, Size: int64(len(procfile))}))
	_, err := tw.Write([]byte(procfile))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	body := buf.Bytes()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body) //nolint:errcheck
	}))
}

func testConfig(t *testing.T) Config {
	return Config{
		ScratchRoot:               t.TempDir(),
		FetchTimeout:              5 * time.Second,
		TerminationGrace:          200 * time.Millisecond,
		RestartBackoffBase:        10 * time.Millisecond,
		RestartBackoffCap:         50 * time.Millisecond,
		RestartBackoffResetWindow: time.Minute,
		LogHubTailSize:            64,
		LogHubQueueSize:           64,
		RemoveTimeout:             2 * time.Second,
	}
}

func newTestRegistry(t *testing.T) (*Registry, func()) {
	t.Helper()

	tree := procsup.NewTree(slog.Default(), procsup.DefaultTreeConfig())
	ctx, cancel := context.WithCancel(context.Background())
	tree.ServeBackground(ctx)

	reg := New(tree, testConfig(t), nil)
	return reg, cancel
}

func TestCreateEnforcesSlugUniqueness(t *testing.T) {
	srv := serveTarGz(t, "web: echo hello\n")
	defer srv.Close()

	reg, cancel := newTestRegistry(t)
	defer cancel()

	req := CreateRequest{App: "myapp", Node: "web.0", ProcessType: "web", SourceURL: srv.URL + "/a.tar.gz"}

	_, err := reg.Create(req)
	require.NoError(t, err)

	_, err = reg.Create(req)
	assert.ErrorIs(t, err, ErrSlugInUse)
}

func TestCreateRejectsInvalidComponents(t *testing.T) {
	reg, cancel := newTestRegistry(t)
	defer cancel()

	_, err := reg.Create(CreateRequest{App: "bad app", Node: "web.0", ProcessType: "web", SourceURL: "http://example.invalid/a.tar.gz"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGetDeleteSubscribeReportNotFoundForUnknownSlug(t *testing.T) {
	reg, cancel := newTestRegistry(t)
	defer cancel()

	_, err := reg.Get("nope.web.0")
	assert.ErrorIs(t, err, ErrNotFound)

	err = reg.Delete("nope.web.0")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Subscribe("nope.web.0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsIdempotentAndEventuallyRemovesDescriptor(t *testing.T) {
	srv := serveTarGz(t, "web: sleep 3600\n")
	defer srv.Close()

	reg, cancel := newTestRegistry(t)
	defer cancel()

	req := CreateRequest{App: "myapp", Node: "web.0", ProcessType: "web", SourceURL: srv.URL + "/a.tar.gz"}
	_, err := reg.Create(req)
	require.NoError(t, err)

	require.NoError(t, reg.Delete(req.Slug()))
	require.NoError(t, reg.Delete(req.Slug()))

	require.Eventually(t, func() bool {
		_, err := reg.Get(req.Slug())
		return err == ErrNotFound
	}, 3*time.Second, 10*time.Millisecond)
}

func TestCreateAfterDeleteCompletesIsAccepted(t *testing.T) {
	srv := serveTarGz(t, "web: sleep 3600\n")
	defer srv.Close()

	reg, cancel := newTestRegistry(t)
	defer cancel()

	req := CreateRequest{App: "myapp", Node: "web.0", ProcessType: "web", SourceURL: srv.URL + "/a.tar.gz"}
	_, err := reg.Create(req)
	require.NoError(t, err)

	require.NoError(t, reg.Delete(req.Slug()))
	require.Eventually(t, func() bool {
		_, err := reg.Get(req.Slug())
		return err == ErrNotFound
	}, 3*time.Second, 10*time.Millisecond)

	_, err = reg.Create(req)
	require.NoError(t, err)
}

func TestListReturnsAllLiveDescriptors(t *testing.T) {
	srv := serveTarGz(t, "web: echo hello\n")
	defer srv.Close()

	reg, cancel := newTestRegistry(t)
	defer cancel()

	_, err := reg.Create(CreateRequest{App: "a1", Node: "web.0", ProcessType: "web", SourceURL: srv.URL + "/a.tar.gz"})
	require.NoError(t, err)
	_, err = reg.Create(CreateRequest{App: "a2", Node: "web.0", ProcessType: "web", SourceURL: srv.URL + "/a.tar.gz"})
	require.NoError(t, err)

	assert.Len(t, reg.List(), 2)
}
