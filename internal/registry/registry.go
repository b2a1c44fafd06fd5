// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry implements C5: the agent-wide slug -> supervisor
// mapping, enforcing slug uniqueness and mediating every create, list,
// get, delete, and subscribe operation a request handler can perform.
package registry

import (
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/slugrunner/agent/internal/loghub"
	"github.com/slugrunner/agent/internal/logging"
	"github.com/slugrunner/agent/internal/process"
)

var (
	// ErrSlugInUse is returned by Create when the derived slug already
	// names a live descriptor.
	ErrSlugInUse = errors.New("slug-in-use")

	// ErrInvalidRequest is returned by Create when app or node fail the
	// charset check slug derivation depends on.
	ErrInvalidRequest = errors.New("invalid-request")

	// ErrNotFound is returned by Get, Delete, and Subscribe for an
	// unknown slug.
	ErrNotFound = errors.New("not-found")
)

var slugComponentRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// nodeRE additionally allows '.', so node names such as "web.0" are valid.
var nodeRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Tree is the subset of internal/procsup.Tree the registry depends on,
// kept local so this package can be unit-tested against a fake tree
// without spinning up a real suture supervisor.
type Tree interface {
	AddProcess(svc suture.Service) suture.ServiceToken
	RemoveProcess(token suture.ServiceToken, timeout time.Duration) error
}

// Sink is everything the registry hands to each process/hub pair it
// creates: the lifecycle counters process.Supervisor drives directly, plus
// the log hub's subscriber-lag counter. *metrics.PrometheusSink and
// metrics.NoopSink() both satisfy it; a nil Sink disables counting.
type Sink interface {
	process.Sink
	loghub.LagSink
}

// Config carries the lifecycle timing parameters every new Supervisor is
// built with.
type Config struct {
	ScratchRoot      string
	FetchTimeout     time.Duration
	TerminationGrace time.Duration

	RestartBackoffBase        time.Duration
	RestartBackoffCap         time.Duration
	RestartBackoffResetWindow time.Duration

	LogHubTailSize  int
	LogHubQueueSize int
	RemoveTimeout   time.Duration
}

// CreateRequest is the validated, already-charset-checked input to
// Create. Request-level JSON decoding and struct-tag validation happen
// in internal/api; this package only re-checks the charset slug
// derivation itself depends on.
type CreateRequest struct {
	App         string
	Node        string
	ProcessType string
	SourceURL   string
	Env         map[string]string
}

// Slug derives the registry's primary key, app + "." + node.
func (r CreateRequest) Slug() string {
	return r.App + "." + r.Node
}

type entry struct {
	sup   *process.Supervisor
	token suture.ServiceToken
	once  sync.Once
}

// Registry is the agent-wide slug -> supervisor map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	tree    Tree
	cfg     Config
	metrics Sink
}

// New builds an empty Registry. tree hosts every supervisor this
// registry creates; metrics may be nil.
func New(tree Tree, cfg Config, metrics Sink) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		tree:    tree,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Create validates req, derives its slug, and — if the slug is free —
// registers a pending descriptor and starts its supervisor. It returns
// once the descriptor is visible to subsequent List/Get calls.
func (r *Registry) Create(req CreateRequest) (process.Snapshot, error) {
	if !slugComponentRE.MatchString(req.App) || !nodeRE.MatchString(req.Node) {
		return process.Snapshot{}, ErrInvalidRequest
	}

	slug := req.Slug()

	r.mu.Lock()
	if _, exists := r.entries[slug]; exists {
		r.mu.Unlock()
		return process.Snapshot{}, ErrSlugInUse
	}

	hub := loghub.NewHub(r.cfg.LogHubTailSize, r.cfg.LogHubQueueSize)
	hub.SetLagSink(r.metrics)
	sup := process.NewSupervisor(process.Spec{
		Slug:                      slug,
		App:                       req.App,
		Node:                      req.Node,
		ProcessType:               req.ProcessType,
		SourceURL:                 req.SourceURL,
		Env:                       req.Env,
		ScratchRoot:               r.cfg.ScratchRoot,
		FetchTimeout:              r.cfg.FetchTimeout,
		TerminationGrace:          r.cfg.TerminationGrace,
		RestartBackoffBase:        r.cfg.RestartBackoffBase,
		RestartBackoffCap:         r.cfg.RestartBackoffCap,
		RestartBackoffResetWindow: r.cfg.RestartBackoffResetWindow,
		Hub:                       hub,
		Metrics:                   r.metrics,
	})

	token := r.tree.AddProcess(sup)
	r.entries[slug] = &entry{sup: sup, token: token}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ProcessCreated()
	}

	logging.Info().Str("slug", slug).Str("source_url", req.SourceURL).Msg("process registered")
	return sup.Snapshot(), nil
}

// List returns a point-in-time snapshot of every descriptor. Order is
// unspecified but stable within this single call.
func (r *Registry) List() []process.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]process.Snapshot, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.sup.Snapshot())
	}
	return out
}

// Get returns the current snapshot for slug.
func (r *Registry) Get(slug string) (process.Snapshot, error) {
	r.mu.RLock()
	e, ok := r.entries[slug]
	r.mu.RUnlock()
	if !ok {
		return process.Snapshot{}, ErrNotFound
	}
	return e.sup.Snapshot(), nil
}

// Subscribe attaches a new log-hub subscriber to slug's process.
func (r *Registry) Subscribe(slug string) (*loghub.Subscription, error) {
	r.mu.RLock()
	e, ok := r.entries[slug]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e.sup.Hub().Subscribe(), nil
}

// Delete signals slug's supervisor to terminate and blocks until the
// supervisor has acknowledged the signal — its descriptor has moved into
// the terminating state, or straight to deleted if nothing was running
// yet. It does not wait for the child process to actually exit. It is
// idempotent: deleting an already terminating/deleted slug returns
// immediately, since that earlier acknowledgment already happened. The
// descriptor is removed from the registry asynchronously, once the
// supervisor's Serve call actually returns, so a later Get eventually —
// not immediately — reports not-found.
func (r *Registry) Delete(slug string) error {
	r.mu.RLock()
	e, ok := r.entries[slug]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.once.Do(func() {
		go r.removeWhenStopped(slug, e)
	})

	<-e.sup.AckDelete()
	logging.Info().Str("slug", slug).Msg("process delete acknowledged")
	return nil
}

func (r *Registry) removeWhenStopped(slug string, e *entry) {
	timeout := r.cfg.RemoveTimeout
	if timeout <= 0 {
		timeout = r.cfg.TerminationGrace + 5*time.Second
	}
	_ = r.tree.RemoveProcess(e.token, timeout)

	r.mu.Lock()
	delete(r.entries, slug)
	r.mu.Unlock()
}
