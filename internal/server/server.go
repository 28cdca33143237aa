// Package server exposes the standards catalog and single-document
// evaluation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dshills/logcheck/internal/batch"
	"github.com/dshills/logcheck/internal/engine"
	"github.com/dshills/logcheck/internal/logger"
	"github.com/dshills/logcheck/internal/rule"
	"github.com/dshills/logcheck/internal/standard"
	"github.com/dshills/logcheck/internal/store"
)

// maxBodyBytes bounds an evaluate request.
const maxBodyBytes = 32 << 20

const requestTimeout = 120 * time.Second

// Server routes API requests. The zero value is not usable; call New.
type Server struct {
	catalog *standard.Catalog
	runner  *batch.Runner
	store   *store.Store
	log     *slog.Logger
	router  *chi.Mux
}

// New builds a server over the catalog. st may be nil, in which case the
// run history endpoints are not mounted.
func New(cat *standard.Catalog, opts batch.Options, st *store.Store) (*Server, error) {
	runner, err := batch.New(cat.List(), opts)
	if err != nil {
		return nil, err
	}
	s := &Server{
		catalog: cat,
		runner:  runner,
		store:   st,
		log:     logger.OrDefault(opts.Logger),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/standards", s.handleListStandards)
		r.Get("/standards/{standardID}", s.handleGetStandard)
		r.Post("/evaluate", s.handleEvaluate)
		if s.store != nil {
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{runID}", s.handleGetRun)
			r.Get("/runs/{runID}/outcomes", s.handleRunOutcomes)
		}
	})
	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   batch.Version,
		"standards": len(s.catalog.List()),
		"history":   s.store != nil,
	})
}

type standardInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AppliesTo   string   `json:"applies_to,omitempty"`
	OpenEnded   bool     `json:"open_ended"`
	Rules       []string `json:"rules"`
}

func (s *Server) handleListStandards(w http.ResponseWriter, r *http.Request) {
	list := s.catalog.List()
	out := make([]standardInfo, 0, len(list))
	for _, std := range list {
		info := standardInfo{
			ID:          std.ID,
			Name:        std.Name,
			Description: std.Description,
			AppliesTo:   std.AppliesTo,
			OpenEnded:   std.OpenEnded,
			Rules:       make([]string, 0, len(std.Rules)),
		}
		for _, rl := range std.Rules {
			info.Rules = append(info.Rules, rule.ID(rl))
		}
		out = append(out, info)
	}
	respondJSON(w, http.StatusOK, map[string]any{"standards": out})
}

type ruleInfo struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Logic       string `json:"logic"`
}

func (s *Server) handleGetStandard(w http.ResponseWriter, r *http.Request) {
	std, err := s.catalog.Get(chi.URLParam(r, "standardID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "standard not found", err)
		return
	}
	rules := make([]ruleInfo, 0, len(std.Rules))
	for _, rl := range std.Rules {
		rules = append(rules, ruleInfo{
			ID:          rule.ID(rl),
			Kind:        string(rl.Kind()),
			Description: rule.Description(rl),
			Logic:       rule.Logic(rl),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":          std.ID,
		"name":        std.Name,
		"description": std.Description,
		"open_ended":  std.OpenEnded,
		"rules":       rules,
	})
}

type evaluateRequest struct {
	Standard  string `json:"standard"`
	Content   string `json:"content"`
	Auxiliary string `json:"auxiliary"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Standard == "" {
		respondError(w, http.StatusBadRequest, "standard is required", nil)
		return
	}
	std, err := s.catalog.Get(req.Standard)
	if err != nil {
		respondError(w, http.StatusNotFound, "standard not found", err)
		return
	}

	res := s.runner.Evaluate(r.Context(), std, engine.Document{Content: req.Content, Auxiliary: req.Auxiliary})
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.Report(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "run not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load run", err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleRunOutcomes(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.Outcomes(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "run not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load outcomes", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"outcomes": out})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
