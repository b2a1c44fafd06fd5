// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	id1 := GenerateCorrelationID()
	id2 := GenerateCorrelationID()

	if id1 == "" {
		t.Error("expected non-empty correlation ID")
	}
	if len(id1) != 8 {
		t.Errorf("expected 8-character correlation ID, got %d", len(id1))
	}
	if id1 == id2 {
		t.Error("expected unique correlation IDs")
	}
}

func TestCorrelationIDContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if id := CorrelationIDFromContext(ctx); id != "" {
		t.Errorf("expected empty correlation ID, got %s", id)
	}

	ctx = ContextWithCorrelationID(ctx, "test-123")
	if id := CorrelationIDFromContext(ctx); id != "test-123" {
		t.Errorf("expected 'test-123', got '%s'", id)
	}
}

func TestContextWithNewCorrelationID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctx = ContextWithNewCorrelationID(ctx)

	id := CorrelationIDFromContext(ctx)
	if id == "" {
		t.Error("expected correlation ID to be generated")
	}
	if len(id) != 8 {
		t.Errorf("expected 8-character correlation ID, got %d", len(id))
	}
}

func TestRequestIDContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if id := RequestIDFromContext(ctx); id != "" {
		t.Errorf("expected empty request ID, got %s", id)
	}

	ctx = ContextWithRequestID(ctx, "req-456")
	if id := RequestIDFromContext(ctx); id != "req-456" {
		t.Errorf("expected 'req-456', got '%s'", id)
	}
}

func TestSlugContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if slug := SlugFromContext(ctx); slug != "" {
		t.Errorf("expected empty slug, got %s", slug)
	}

	ctx = ContextWithSlug(ctx, "web.1")
	if slug := SlugFromContext(ctx); slug != "web.1" {
		t.Errorf("expected 'web.1', got '%s'", slug)
	}
}

func TestCtx(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	ctx := context.Background()
	ctx = ContextWithCorrelationID(ctx, "corr-123")
	ctx = ContextWithRequestID(ctx, "req-456")
	ctx = ContextWithSlug(ctx, "web.1")

	Ctx(ctx).Info().Msg("context test")

	output := buf.String()
	if !strings.Contains(output, "corr-123") {
		t.Errorf("expected correlation_id in output: %s", output)
	}
	if !strings.Contains(output, "req-456") {
		t.Errorf("expected request_id in output: %s", output)
	}
	if !strings.Contains(output, "web.1") {
		t.Errorf("expected slug in output: %s", output)
	}
}

func TestCtxError(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	ctx := context.Background()
	ctx = ContextWithSlug(ctx, "web.2")

	CtxError(ctx).Msg("attach failed")

	output := buf.String()
	if !strings.Contains(output, "error") {
		t.Errorf("expected error level in output: %s", output)
	}
	if !strings.Contains(output, "web.2") {
		t.Errorf("expected slug in output: %s", output)
	}
}
