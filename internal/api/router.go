// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slugrunner/agent/internal/middleware"
)

// NewRouter builds the full chi route table for the request surface.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/", h.Index)
	r.Get("/list-processes", h.ListProcesses)
	r.Post("/create-process", h.CreateProcess)
	r.Get("/process-status/{slug}", h.ProcessStatus)
	r.Post("/delete-process/{slug}", h.DeleteProcess)
	r.Get("/attach-console/{slug}", h.AttachConsole)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
