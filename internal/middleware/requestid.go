// SPDX-License-Identifier: AGPL-3.0-or-later

// Package middleware holds chi middleware shared across the request surface.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/slugrunner/agent/internal/logging"
)

// requestIDHeader is echoed back to the caller so client and server logs
// can be correlated.
const requestIDHeader = "X-Request-ID"

// RequestID assigns a request ID and a correlation ID to the request
// context, reusing an inbound X-Request-ID header when the caller already
// supplied one. Handlers retrieve both via logging.Ctx(r.Context()).
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}

		ctx := logging.ContextWithRequestID(r.Context(), reqID)
		ctx = logging.ContextWithNewCorrelationID(ctx)

		w.Header().Set(requestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID carried by the request context, or
// an empty string if none was set.
func GetRequestID(r *http.Request) string {
	return logging.RequestIDFromContext(r.Context())
}
