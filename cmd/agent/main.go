// SPDX-License-Identifier: AGPL-3.0-or-later

// Command agent runs the slugrunner process-runner agent: it accepts
// create/list/status/delete/attach-console requests over HTTP and
// WebSocket, fetches and extracts an app archive per request, parses its
// Procfile-style manifest, and keeps the resulting child process alive
// under automatic restart until the caller deletes it.
//
// Configuration is layered defaults -> optional YAML file -> environment
// variables, via internal/config. Logging is zerolog, bridged to slog for
// the suture supervisor tree via internal/logging's slog adapter.
//
// On SIGINT/SIGTERM the agent stops accepting new requests, signals every
// live process supervisor to delete, waits for them to exit, and returns.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slugrunner/agent/internal/api"
	"github.com/slugrunner/agent/internal/config"
	"github.com/slugrunner/agent/internal/logging"
	"github.com/slugrunner/agent/internal/metrics"
	"github.com/slugrunner/agent/internal/procsup"
	"github.com/slugrunner/agent/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("listen_addr", cfg.Server.ListenAddr).Msg("Starting slugrunner agent")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slogLogger := logging.NewSlogLogger()

	tree := procsup.NewTree(slogLogger, procsup.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})

	metricsSink := metrics.NewPrometheusSink()

	reg := registry.New(tree, registry.Config{
		ScratchRoot:               cfg.Process.ScratchRoot,
		FetchTimeout:              cfg.Process.FetchTimeout,
		TerminationGrace:          cfg.Process.TerminationGrace,
		RestartBackoffBase:        cfg.Process.RestartBackoffBase,
		RestartBackoffCap:         cfg.Process.RestartBackoffCap,
		RestartBackoffResetWindow: cfg.Process.RestartBackoffResetWindow,
		LogHubTailSize:            cfg.LogHub.TailSize,
		LogHubQueueSize:           cfg.LogHub.SubscriberQueueSize,
		RemoveTimeout:             cfg.Process.TerminationGrace + 5*time.Second,
	}, metricsSink)

	handler := api.NewHandler(reg, cfg.Server.PublicBaseURL)
	router := api.NewRouter(handler)

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
	}
	apiService := api.NewService(httpServer, cfg.Process.TerminationGrace)
	tree.AddAPIService(apiService)

	treeErrCh := tree.ServeBackground(ctx)

	<-ctx.Done()
	logging.Info().Msg("Shutdown signal received, deleting live processes")

	for _, snap := range reg.List() {
		if err := reg.Delete(snap.Slug); err != nil {
			logging.Error().Err(err).Str("slug", snap.Slug).Msg("Failed to signal process deletion during shutdown")
		}
	}

	if err := <-treeErrCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
		os.Exit(1)
	}

	logging.Info().Msg("Slugrunner agent stopped cleanly")
}
