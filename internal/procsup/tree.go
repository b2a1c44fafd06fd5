// SPDX-License-Identifier: AGPL-3.0-or-later

// Package procsup hosts the agent's top-level suture supervisor tree: one
// branch for the HTTP/WebSocket request surface, one for the per-process
// supervisors the registry creates and removes as processes come and go.
package procsup

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree tuning knobs shared by both layers.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay float64

	// FailureBackoff is how long to wait once the threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long Remove/RemoveAndWait waits for a
	// service's Serve to return before giving up.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig mirrors suture's own built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the agent's supervisor tree. Process supervisors live in their
// own branch so a crash isolated there never disturbs the request
// surface's ability to keep answering list/status requests.
type Tree struct {
	root      *suture.Supervisor
	processes *suture.Supervisor
	api       *suture.Supervisor
	config    TreeConfig
}

// NewTree builds the two-branch tree: processes (one child per supervised
// process) and api (the HTTP/WebSocket server).
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("slugrunner-agent", rootSpec)
	processes := suture.New("processes", childSpec)
	api := suture.New("api", childSpec)

	root.Add(processes)
	root.Add(api)

	return &Tree{root: root, processes: processes, api: api, config: config}
}

// AddProcess starts svc (a *process.Supervisor) under the processes
// branch and returns a token used to remove it later.
func (t *Tree) AddProcess(svc suture.Service) suture.ServiceToken {
	return t.processes.Add(svc)
}

// RemoveProcess stops and removes svc, blocking until its Serve call has
// returned or timeout elapses.
func (t *Tree) RemoveProcess(token suture.ServiceToken, timeout time.Duration) error {
	return t.processes.RemoveAndWait(token, timeout)
}

// AddAPIService starts the HTTP/WebSocket server under the api branch.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the whole tree and blocks until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in the background, returning a channel
// that receives its terminal error.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport reports services that didn't stop within their
// shutdown timeout, for diagnosing a slow or stuck shutdown.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
