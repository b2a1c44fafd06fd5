// SPDX-License-Identifier: AGPL-3.0-or-later

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/slugrunner/agent/internal/archive"
	"github.com/slugrunner/agent/internal/loghub"
	"github.com/slugrunner/agent/internal/logging"
	"github.com/slugrunner/agent/internal/manifest"
)

// Supervisor owns one process descriptor's full lifecycle: fetch, parse,
// spawn, run, restart, and terminate. It satisfies suture.Service's
// Serve(context.Context) error contract so the agent-level supervisor
// tree can host it, but the restart loop is internal to Serve — suture
// only acts as an outer safety net in case Serve itself panics or
// returns unexpectedly, never as the restart mechanism spec.md §4.4
// describes.
//
// A Supervisor's Serve exits for good once the descriptor reaches the
// deleted state; the registry is responsible for removing the
// corresponding token from the supervisor tree afterward so suture does
// not spawn a replacement.
type Supervisor struct {
	spec Spec

	mu        sync.Mutex
	state     State
	lastErr   *LastError
	createdAt time.Time

	ackOnce sync.Once
	ackCh   chan struct{}
}

// NewSupervisor builds a Supervisor in the pending state. Serve must be
// called (normally by the agent's supervisor tree) to start it.
func NewSupervisor(spec Spec) *Supervisor {
	return &Supervisor{
		spec:      spec,
		state:     StatePending,
		createdAt: time.Now(),
		ackCh:     make(chan struct{}),
	}
}

// String implements fmt.Stringer so suture can name this service in logs.
func (s *Supervisor) String() string {
	return "process-supervisor:" + s.spec.Slug
}

// Hub returns the log hub subscribers attach to for this descriptor's
// live stdout/stderr stream. The hub is fixed at construction time and
// safe to use concurrently with Serve.
func (s *Supervisor) Hub() *loghub.Hub {
	return s.spec.Hub
}

// Snapshot returns an immutable, point-in-time copy of the descriptor.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	env := make(map[string]string, len(s.spec.Env))
	for k, v := range s.spec.Env {
		env[k] = v
	}

	var lastErr *LastError
	if s.lastErr != nil {
		cp := *s.lastErr
		lastErr = &cp
	}

	return Snapshot{
		Slug:        s.spec.Slug,
		App:         s.spec.App,
		Node:        s.spec.Node,
		ProcessType: s.spec.ProcessType,
		SourceURL:   s.spec.SourceURL,
		Env:         env,
		State:       s.state,
		LastError:   lastErr,
		CreatedAt:   s.createdAt,
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	// Terminating and deleted are the two states a delete signal can land
	// on (running/restarting children pass through terminating first;
	// pending/fetching/parsing/failed descriptors jump straight to
	// deleted). Either one means the signal has been acknowledged.
	if st == StateTerminating || st == StateDeleted {
		s.acknowledgeDelete()
	}
}

// acknowledgeDelete unblocks AckDelete. Safe to call more than once; only
// the first call has any effect.
func (s *Supervisor) acknowledgeDelete() {
	s.ackOnce.Do(func() { close(s.ackCh) })
}

// AckDelete returns a channel that closes once this supervisor has
// observed a delete signal (ctx cancellation) and moved its descriptor
// out of a running state. The registry blocks on it so Delete returns
// only once the supervisor has acknowledged the signal, per spec, rather
// than the instant the signal was merely sent.
func (s *Supervisor) AckDelete() <-chan struct{} {
	return s.ackCh
}

func (s *Supervisor) fail(category ErrorCategory, detail string) {
	s.mu.Lock()
	s.state = StateFailed
	s.lastErr = &LastError{Category: category, Detail: detail}
	s.mu.Unlock()
	if s.spec.Metrics != nil {
		s.spec.Metrics.ProcessFailed(string(category))
	}
	logging.Error().Str("slug", s.spec.Slug).Str("category", string(category)).Str("detail", detail).Msg("process failed")
}

// finish moves the descriptor to its terminal deleted state, releasing
// the log hub and recording the deletion metric. Called exactly once per
// Supervisor, from whichever point in Serve observes the delete signal.
func (s *Supervisor) finish() {
	s.setState(StateDeleted)
	if s.spec.Hub != nil {
		s.spec.Hub.Close()
	}
	if s.spec.Metrics != nil {
		s.spec.Metrics.ProcessDeleted()
	}
	logging.Info().Str("slug", s.spec.Slug).Msg("process supervisor stopped")
}

// Serve runs the descriptor's full lifecycle. ctx's cancellation is the
// delete signal spec.md §4.4 describes: the owning registry cancels it
// (by removing this service from the supervisor tree) when a client
// deletes the process.
func (s *Supervisor) Serve(ctx context.Context) error {
	logging.Info().Str("slug", s.spec.Slug).Str("process_type", s.spec.ProcessType).Msg("process supervisor starting")

	if ctxDone(ctx) {
		s.finish()
		return nil
	}

	dir, err := s.prepareScratchDir()
	if err != nil {
		s.fail(ErrorCategoryFetch, fmt.Sprintf("failed to create scratch directory: %v", err))
		return s.awaitDeleteThenFinish(ctx)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // best effort cleanup

	s.setState(StateFetching)
	if err := s.fetch(ctx, dir); err != nil {
		s.fail(ErrorCategoryFetch, err.Error())
		return s.awaitDeleteThenFinish(ctx)
	}

	if ctxDone(ctx) {
		s.finish()
		return nil
	}

	s.setState(StateParsing)
	argv, err := s.parseManifest(dir)
	if err != nil {
		return s.handleManifestError(ctx, err)
	}

	return s.runLoop(ctx, dir, argv)
}

// fetch downloads and extracts the archive, bounding the operation by
// spec's FetchTimeout when one is configured.
func (s *Supervisor) fetch(ctx context.Context, dir string) error {
	fetchCtx := ctx
	if s.spec.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.spec.FetchTimeout)
		defer cancel()
	}
	return archive.Fetch(fetchCtx, s.spec.SourceURL, dir)
}

// parseManifest reads the manifest and resolves this descriptor's
// process type to an argv. unknownProcessTypeError is returned (wrapped)
// when the manifest doesn't declare the requested process type, so the
// caller can apply the "no retry" policy spec.md §4.4/§7 require for it.
func (s *Supervisor) parseManifest(dir string) ([]string, error) {
	entries, err := manifest.Parse(dir)
	if err != nil {
		return nil, err
	}

	cmdLine, ok := entries[s.spec.ProcessType]
	if !ok {
		return nil, &unknownProcessTypeError{processType: s.spec.ProcessType}
	}

	argv := manifest.SplitArgv(cmdLine)
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command for process type %q", s.spec.ProcessType)
	}
	return argv, nil
}

type unknownProcessTypeError struct{ processType string }

func (e *unknownProcessTypeError) Error() string {
	return fmt.Sprintf("manifest has no process type %q", e.processType)
}

func (s *Supervisor) handleManifestError(ctx context.Context, err error) error {
	var unknownErr *unknownProcessTypeError
	if errors.As(err, &unknownErr) {
		s.fail(ErrorCategoryUnknownProcessType, err.Error())
	} else {
		s.fail(ErrorCategoryParse, err.Error())
	}
	return s.awaitDeleteThenFinish(ctx)
}

// runLoop drives running -> restarting transitions indefinitely until
// either the child can't be spawned at all (spawn-error, no retry) or a
// delete signal arrives.
func (s *Supervisor) runLoop(ctx context.Context, dir string, argv []string) error {
	env := mergeEnv(os.Environ(), nil, mapToEnvSlice(s.spec.Env))
	bo := newBackoff(s.spec.RestartBackoffBase, s.spec.RestartBackoffCap, s.spec.RestartBackoffResetWindow)

	for {
		if ctxDone(ctx) {
			s.finish()
			return nil
		}

		s.setState(StateRunning)
		startedAt := time.Now()

		terminatedByDelete, spawnErr := s.runChild(ctx, dir, argv, env)
		if spawnErr != nil {
			s.fail(ErrorCategorySpawn, spawnErr.Error())
			return s.awaitDeleteThenFinish(ctx)
		}
		if terminatedByDelete {
			s.finish()
			return nil
		}

		bo.noteUptime(time.Since(startedAt))
		if s.spec.Metrics != nil {
			s.spec.Metrics.ProcessRestarted()
		}

		delay := bo.next()
		s.setState(StateRestarting)
		logging.Warn().Str("slug", s.spec.Slug).Dur("uptime", time.Since(startedAt)).Dur("backoff", delay).Msg("process exited, restarting")
		select {
		case <-ctx.Done():
			s.finish()
			return nil
		case <-time.After(delay):
		}
	}
}

// runChild spawns argv once, pumps its stdout/stderr into the log hub,
// and waits for it to exit either naturally or via a delete signal. It
// reports terminatedByDelete=true when ctx was cancelled and the process
// lifecycle ended by deletion rather than a natural child exit.
func (s *Supervisor) runChild(ctx context.Context, dir string, argv, env []string) (terminatedByDelete bool, spawnErr error) {
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // argv comes from the manifest by design
	cmd.Dir = dir
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return false, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("failed to start process: %w", err)
	}

	wait := pumpPipes(stdout, stderr, s.spec.Hub)

	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()

	select {
	case <-exitCh:
		wait()
		return false, nil
	case <-ctx.Done():
	}

	s.setState(StateTerminating)
	logging.Info().Str("slug", s.spec.Slug).Msg("delete signal received, terminating child")
	s.terminate(cmd, exitCh)
	wait()
	return true, nil
}

// terminate sends SIGTERM, waits up to the configured grace period, and
// escalates to SIGKILL on timeout. It always waits unconditionally for
// the process to actually exit before returning.
func (s *Supervisor) terminate(cmd *exec.Cmd, exitCh chan error) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	grace := s.spec.TerminationGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}

	select {
	case <-exitCh:
		return
	case <-time.After(grace):
	}

	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-exitCh
}

// awaitDeleteThenFinish blocks in the failed state until a delete signal
// arrives, matching spec.md §4.4's "failed | delete request | deleted".
func (s *Supervisor) awaitDeleteThenFinish(ctx context.Context) error {
	<-ctx.Done()
	s.finish()
	return nil
}

func (s *Supervisor) prepareScratchDir() (string, error) {
	suffix := uuid.New().String()[:8]
	dir := filepath.Join(s.spec.ScratchRoot, s.spec.Slug+"-"+suffix)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}

func ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
