// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements C6: the mechanical HTTP/WebSocket adapter over the
// process registry. Handlers decode JSON, call the registry, and encode
// JSON; no lifecycle logic lives here.
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/slugrunner/agent/internal/logging"
	"github.com/slugrunner/agent/internal/process"
	"github.com/slugrunner/agent/internal/registry"
)

// Handler holds the dependencies every request handler needs: the registry
// to call into and, optionally, a fixed public base URL for document links.
type Handler struct {
	registry      *registry.Registry
	publicBaseURL string
}

// NewHandler builds a Handler. publicBaseURL overrides host-derived URLs in
// every document when non-empty.
func NewHandler(reg *registry.Registry, publicBaseURL string) *Handler {
	return &Handler{registry: reg, publicBaseURL: publicBaseURL}
}

type indexDocument struct {
	List   string `json:"list"`
	Create string `json:"create"`
}

type errorDocument struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type lastErrorDocument struct {
	Category string `json:"category"`
	Detail   string `json:"detail"`
}

type processSnapshotDocument struct {
	Slug        string             `json:"slug"`
	App         string             `json:"app"`
	Node        string             `json:"node"`
	ProcessType string             `json:"process_type"`
	SourceURL   string             `json:"source_url"`
	State       string             `json:"state"`
	LastError   *lastErrorDocument `json:"last_error,omitempty"`
	Attach      string             `json:"attach"`
	Details     string             `json:"details"`
	Delete      string             `json:"delete"`
}

type listProcessesDocument struct {
	Processes []processSnapshotDocument `json:"processes"`
}

type emptyDocument struct{}

func (h *Handler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return strings.TrimSuffix(h.publicBaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (h *Handler) toDocument(r *http.Request, snap process.Snapshot) processSnapshotDocument {
	base := h.baseURL(r)
	doc := processSnapshotDocument{
		Slug:        snap.Slug,
		App:         snap.App,
		Node:        snap.Node,
		ProcessType: snap.ProcessType,
		SourceURL:   snap.SourceURL,
		State:       string(snap.State),
		Attach:      base + "/attach-console/" + snap.Slug,
		Details:     base + "/process-status/" + snap.Slug,
		Delete:      base + "/delete-process/" + snap.Slug,
	}
	if snap.LastError != nil {
		doc.LastError = &lastErrorDocument{Category: string(snap.LastError.Category), Detail: snap.LastError.Detail}
	}
	return doc
}

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	base := h.baseURL(r)
	respondJSON(w, http.StatusOK, indexDocument{
		List:   base + "/list-processes",
		Create: base + "/create-process",
	})
}

// ListProcesses handles GET /list-processes.
func (h *Handler) ListProcesses(w http.ResponseWriter, r *http.Request) {
	snaps := h.registry.List()
	docs := make([]processSnapshotDocument, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, h.toDocument(r, snap))
	}
	respondJSON(w, http.StatusOK, listProcessesDocument{Processes: docs})
}

// CreateProcess handles POST /create-process.
func (h *Handler) CreateProcess(w http.ResponseWriter, r *http.Request) {
	var body createProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid-request", "malformed JSON body")
		return
	}

	if detail := validateCreateRequest(&body); detail != "" {
		respondError(w, http.StatusBadRequest, "invalid-request", detail)
		return
	}

	snap, err := h.registry.Create(registry.CreateRequest{
		App:         body.App,
		Node:        body.Node,
		ProcessType: body.ProcessType,
		SourceURL:   body.SourceURL,
		Env:         body.Env,
	})
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrSlugInUse):
			respondError(w, http.StatusConflict, "slug-in-use", "")
		case errors.Is(err, registry.ErrInvalidRequest):
			respondError(w, http.StatusBadRequest, "invalid-request", "app must match [A-Za-z0-9_-]+ and node [A-Za-z0-9_.-]+")
		default:
			logging.CtxError(r.Context()).Err(err).Msg("create-process failed unexpectedly")
			respondError(w, http.StatusInternalServerError, "internal-error", "")
		}
		return
	}

	respondJSON(w, http.StatusCreated, h.toDocument(r, snap))
}

// ProcessStatus handles GET /process-status/{slug}.
func (h *Handler) ProcessStatus(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	snap, err := h.registry.Get(slug)
	if err != nil {
		respondError(w, http.StatusNotFound, "not-found", "")
		return
	}
	respondJSON(w, http.StatusOK, h.toDocument(r, snap))
}

// DeleteProcess handles POST /delete-process/{slug}.
func (h *Handler) DeleteProcess(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if err := h.registry.Delete(slug); err != nil {
		respondError(w, http.StatusNotFound, "not-found", "")
		return
	}
	respondJSON(w, http.StatusOK, emptyDocument{})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, kind, detail string) {
	respondJSON(w, status, errorDocument{Error: kind, Detail: detail})
}
