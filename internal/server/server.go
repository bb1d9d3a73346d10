// Package server is the local development backend: the concatenation-state
// resource over a store.Store plus the filtered-data, concatenate-sheets and
// histogram endpoints over files in a data directory.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"github.com/KaramelBytes/mixwizard-cli/internal/store"
)

// Server wires the handlers, middleware and metrics into one router.
type Server struct {
	router  chi.Router
	metrics *Metrics
}

// New builds the router. dataDir holds uploaded and concatenated files.
func New(st store.Store, dataDir string) *Server {
	s := &Server{metrics: NewMetrics()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(s.metrics.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, envelope{Success: true, Data: map[string]string{"status": "ok"}})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	states := NewStateHandler(st, s.metrics)
	data := NewDataHandler(dataDir)
	r.Route("/api", func(r chi.Router) {
		r.Mount("/concatenation-state", states.Routes())
		r.Post("/filtered-data", data.FilteredData)
		r.Post("/concatenate-sheets", data.ConcatenateSheets)
		r.Post("/histograms", data.Histograms)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// HTTPServer returns an http.Server for addr with conservative timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
}

// envelope is the wire wrapper shared by every endpoint.
type envelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func respondOK(w http.ResponseWriter, r *http.Request, data any) {
	render.JSON(w, r, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string, details ...string) {
	render.Status(r, status)
	render.JSON(w, r, envelope{Success: false, Error: msg, Errors: details})
}

func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
