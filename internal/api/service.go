// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// httpServer matches *http.Server's lifecycle methods, kept narrow so this
// package has no hard dependency on a concrete server implementation.
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Service adapts a blocking *http.Server to suture.Service's
// Serve(ctx) error contract: it runs ListenAndServe in the background and
// calls Shutdown once ctx is cancelled, waiting for it to drain.
type Service struct {
	server          httpServer
	shutdownTimeout time.Duration
}

// NewService wraps server for the agent-level supervisor tree's api branch.
func NewService(server *http.Server, shutdownTimeout time.Duration) *Service {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Service{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("request surface failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("request surface shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer so suture can name this service in logs.
func (s *Service) String() string {
	return "request-surface"
}
