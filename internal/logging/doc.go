// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging is the agent-wide structured logging facade: a global
// zerolog logger behind a sync.RWMutex, plus a small set of context
// helpers so a log line written deep inside a call chain can still carry
// the slug and request IDs that started it.
//
// # Call shapes
//
// Package-level events, for code with no request context (the
// supervisor, the registry, main):
//
//	logging.Info().Str("slug", slug).Msg("process registered")
//	logging.Error().Str("slug", slug).Str("category", string(category)).Msg("process failed")
//
// Context-aware events, for HTTP handlers (internal/api), which pull
// correlation_id, request_id, and slug off the request context
// automatically:
//
//	logging.CtxError(r.Context()).Err(err).Msg("create-process failed")
//
// # Configuration
//
// logging.Init is called once from cmd/agent/main.go after config.Load
// resolves the logging section's fields:
//
//	logging.Init(logging.Config{
//	    Level:  cfg.Logging.Level,  // debug, info, warn, error, fatal
//	    Format: cfg.Logging.Format, // json or console
//	    Caller: cfg.Logging.Caller,
//	})
//
// Before Init runs, an init() in logger.go installs DefaultConfig() so
// packages that log at import time (none currently do) still have a
// working logger.
//
// # Request correlation
//
// internal/middleware.RequestID assigns a request ID (from the
// X-Request-ID header, or a fresh UUID) and a correlation ID to every
// incoming HTTP request's context. A create/delete/attach handler that
// later wants to tie its own log line to the process it's operating on
// layers ContextWithSlug on top before calling CtxError, so a single
// failed request's logs all carry the same correlation_id, request_id,
// and slug.
//
// # Suture bridge
//
// internal/procsup wires the supervisor tree's own event log through
// NewSlogLogger and thejerf/sutureslog, so suture's restart/panic
// reporting lands in the same JSON stream as every other log line instead
// of going to its default stdlib-log output.
package logging
