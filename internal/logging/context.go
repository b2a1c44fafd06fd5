// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// correlationIDKey is the context key for correlation IDs.
	correlationIDKey contextKey = "correlation_id"

	// requestIDKey is the context key for HTTP request IDs.
	requestIDKey contextKey = "request_id"

	// slugKey is the context key for the process descriptor a request or
	// supervisor goroutine is acting on.
	slugKey contextKey = "slug"
)

// GenerateCorrelationID creates a new unique correlation ID, the first 8
// characters of a UUID, short enough to read in a terminal.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID returns a new context carrying id.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID returns a context with a freshly generated
// correlation ID. internal/middleware.RequestID calls this once per
// incoming HTTP request.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext retrieves the correlation ID from context, or
// "" if none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context carrying id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext retrieves the request ID from context, or "" if
// none is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithSlug returns a new context carrying the process slug a
// request handler or supervisor goroutine is operating on, so error logs
// from deep inside a call chain (an attach, a create, a delete) don't
// need slug threaded through every function signature just to log it.
func ContextWithSlug(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, slugKey, slug)
}

// SlugFromContext retrieves the process slug from context, or "" if none
// is set.
func SlugFromContext(ctx context.Context) string {
	if slug, ok := ctx.Value(slugKey).(string); ok {
		return slug
	}
	return ""
}

// Ctx returns the global logger enriched with whichever of correlation_id,
// request_id, and slug are present on ctx. This is the handler-side
// counterpart to the Str("slug", ...) calls the supervisor and registry
// make directly on the global logger.
//
//	logging.Ctx(r.Context()).Error().Err(err).Msg("create-process failed")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger().With().Logger()

	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		l = l.With().Str("correlation_id", correlationID).Logger()
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		l = l.With().Str("request_id", requestID).Logger()
	}
	if slug := SlugFromContext(ctx); slug != "" {
		l = l.With().Str("slug", slug).Logger()
	}

	return &l
}

// CtxError starts an error-level event with ctx's correlation/request/slug
// fields already attached. Shorthand for Ctx(ctx).Error().
func CtxError(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Error()
}
