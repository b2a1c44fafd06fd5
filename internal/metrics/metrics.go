// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes the agent's Prometheus counters behind a Sink
// interface. spec.md §1 treats "metric emission sinks" as an external
// collaborator; internal/process and internal/registry depend only on the
// Sink interface, never on prometheus/client_golang directly, so the
// lifecycle engine has no hard dependency on an observability backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink receives lifecycle events the agent wants counted. NoopSink()
// discards every event; internal/registry also accepts a nil Sink and then
// counts nothing.
type Sink interface {
	ProcessCreated()
	ProcessDeleted()
	ProcessFailed(category string)
	ProcessRestarted()
	SubscriberLagging()
}

// PrometheusSink implements Sink with promauto-registered collectors,
// following the teacher's internal/metrics package convention of
// package-level promauto vars grouped by subsystem.
type PrometheusSink struct {
	created    prometheus.Counter
	deleted    prometheus.Counter
	failed     *prometheus.CounterVec
	restarted  prometheus.Counter
	subLagging prometheus.Counter
}

// NewPrometheusSink registers the agent's counters against the default
// registry and returns a Sink backed by them.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slugrunner_processes_created_total",
			Help: "Total number of processes successfully registered.",
		}),
		deleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slugrunner_processes_deleted_total",
			Help: "Total number of processes that reached the deleted state.",
		}),
		failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "slugrunner_processes_failed_total",
			Help: "Total number of processes that entered the failed state, by category.",
		}, []string{"category"}),
		restarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slugrunner_process_restarts_total",
			Help: "Total number of child process restarts across all processes.",
		}),
		subLagging: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slugrunner_log_subscriber_lagging_total",
			Help: "Total number of times a log subscriber overflowed its outbound queue.",
		}),
	}
}

func (s *PrometheusSink) ProcessCreated()              { s.created.Inc() }
func (s *PrometheusSink) ProcessDeleted()              { s.deleted.Inc() }
func (s *PrometheusSink) ProcessFailed(category string) { s.failed.WithLabelValues(category).Inc() }
func (s *PrometheusSink) ProcessRestarted()             { s.restarted.Inc() }
func (s *PrometheusSink) SubscriberLagging()            { s.subLagging.Inc() }

type noopSink struct{}

func (noopSink) ProcessCreated()               {}
func (noopSink) ProcessDeleted()               {}
func (noopSink) ProcessFailed(category string) {}
func (noopSink) ProcessRestarted()             {}
func (noopSink) SubscriberLagging()            {}

// NoopSink returns a Sink that discards every event, for tests and for
// deployments that don't want Prometheus wired in.
func NoopSink() Sink { return noopSink{} }
