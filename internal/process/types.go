// SPDX-License-Identifier: AGPL-3.0-or-later

// Package process implements C4: one process descriptor's full lifecycle
// state machine, from archive fetch through supervised run to deletion.
package process

import (
	"time"

	"github.com/slugrunner/agent/internal/loghub"
)

// State is one point in the descriptor's lifecycle. Once Deleted is
// reached no further transition occurs; once Failed, only a delete moves
// it on.
type State string

const (
	StatePending     State = "pending"
	StateFetching    State = "fetching"
	StateUnpacking   State = "unpacking"
	StateParsing     State = "parsing"
	StateRunning     State = "running"
	StateRestarting  State = "restarting"
	StateTerminating State = "terminating"
	StateFailed      State = "failed"
	StateDeleted     State = "deleted"
)

// ErrorCategory classifies last_error for machine matching, mirroring the
// fetch-error{category, detail} shape C1 already uses.
type ErrorCategory string

const (
	ErrorCategoryFetch              ErrorCategory = "fetch-error"
	ErrorCategoryParse              ErrorCategory = "parse-error"
	ErrorCategorySpawn              ErrorCategory = "spawn-error"
	ErrorCategoryUnknownProcessType ErrorCategory = "unknown-process-type"
)

// LastError is the structured diagnostic recorded when State == Failed.
type LastError struct {
	Category ErrorCategory
	Detail   string
}

// Spec is everything the supervisor needs to run one process, supplied
// once at creation time and never mutated afterward.
type Spec struct {
	Slug        string
	App         string
	Node        string
	ProcessType string
	SourceURL   string
	Env         map[string]string

	ScratchRoot      string
	FetchTimeout     time.Duration
	TerminationGrace time.Duration

	RestartBackoffBase        time.Duration
	RestartBackoffCap         time.Duration
	RestartBackoffResetWindow time.Duration

	Hub     *loghub.Hub
	Metrics Sink
}

// Sink is the subset of internal/metrics.Sink the supervisor depends on,
// kept local so this package has no hard dependency on the metrics
// package or, transitively, prometheus/client_golang.
type Sink interface {
	ProcessCreated()
	ProcessDeleted()
	ProcessFailed(category string)
	ProcessRestarted()
}

// Snapshot is an immutable, point-in-time copy of a descriptor, safe to
// hand to callers outside the owning supervisor's goroutine.
type Snapshot struct {
	Slug        string
	App         string
	Node        string
	ProcessType string
	SourceURL   string
	Env         map[string]string
	State       State
	LastError   *LastError
	CreatedAt   time.Time
}
