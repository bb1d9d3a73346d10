package server

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"github.com/KaramelBytes/mixwizard-cli/internal/backend"
	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
	"github.com/KaramelBytes/mixwizard-cli/internal/store"
)

const maxStateBody = 8 << 20

// StateHandler serves the concatenation-state resource.
type StateHandler struct {
	store   store.Store
	metrics *Metrics
}

// NewStateHandler creates a handler over st.
func NewStateHandler(st store.Store, m *Metrics) *StateHandler {
	return &StateHandler{store: st, metrics: m}
}

// Routes returns the resource routes.
func (h *StateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.List)
	r.Route("/{name}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Put)
		r.Delete("/", h.Delete)
	})
	return r
}

// nameParam returns the unescaped {name} segment. chi matches on RawPath
// when the request carried escapes the default encoding would not produce.
func nameParam(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath != "" {
		if un, err := url.PathUnescape(name); err == nil {
			name = un
		}
	}
	return strings.TrimSpace(name)
}

// List handles GET /api/concatenation-state.
func (h *StateHandler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list concatenation states")
		respondError(w, r, http.StatusInternalServerError, "failed to list concatenation states")
		return
	}
	respondOK(w, r, backend.StateList{Names: names})
}

// Get handles GET /api/concatenation-state/{name}.
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := nameParam(r)
	st, err := h.store.Get(r.Context(), name)
	if err != nil {
		h.metrics.stateOp("get", "error")
		log.Error().Err(err).Str("originalFileName", name).Msg("get concatenation state")
		respondError(w, r, http.StatusInternalServerError, "failed to read concatenation state")
		return
	}
	if st == nil {
		h.metrics.stateOp("get", "not_found")
		respondError(w, r, http.StatusNotFound, "concatenation state not found")
		return
	}
	h.metrics.stateOp("get", "ok")
	respondOK(w, r, st)
}

// Put handles PUT /api/concatenation-state/{name}. The body is validated as a
// loose document before it is trusted.
func (h *StateHandler) Put(w http.ResponseWriter, r *http.Request) {
	name := nameParam(r)
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxStateBody))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}
	st, res, err := concat.DecodeDocument(raw)
	if err != nil {
		h.metrics.stateOp("put", "invalid")
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !res.IsValid {
		h.metrics.stateOp("put", "invalid")
		respondError(w, r, http.StatusBadRequest, "invalid concatenation state: "+strings.Join(res.Errors, "; "), res.Errors...)
		return
	}
	if st.OriginalFileName != name {
		h.metrics.stateOp("put", "invalid")
		respondError(w, r, http.StatusBadRequest, "originalFileName does not match the resource path")
		return
	}
	if err := h.store.Put(r.Context(), st); err != nil {
		h.metrics.stateOp("put", "error")
		log.Error().Err(err).Str("originalFileName", name).Msg("put concatenation state")
		respondError(w, r, http.StatusInternalServerError, "failed to store concatenation state")
		return
	}
	h.metrics.stateOp("put", "ok")
	log.Debug().Str("originalFileName", name).Str("status", string(st.Status)).Msg("stored concatenation state")
	respondOK(w, r, st)
}

// Delete handles DELETE /api/concatenation-state/{name}.
func (h *StateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := nameParam(r)
	existing, err := h.store.Get(r.Context(), name)
	if err == nil && existing == nil {
		h.metrics.stateOp("delete", "not_found")
		respondError(w, r, http.StatusNotFound, "concatenation state not found")
		return
	}
	if err == nil {
		err = h.store.Delete(r.Context(), name)
	}
	if err != nil {
		h.metrics.stateOp("delete", "error")
		log.Error().Err(err).Str("originalFileName", name).Msg("delete concatenation state")
		respondError(w, r, http.StatusInternalServerError, "failed to delete concatenation state")
		return
	}
	h.metrics.stateOp("delete", "ok")
	respondOK(w, r, map[string]string{"deleted": name})
}
