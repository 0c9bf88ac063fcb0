// Package server exposes the search subsystem over a local HTTP API.
// Searches are asynchronous: submission returns a job id immediately and
// callers poll progress until the job reaches a terminal state.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/filehound/filehound/fhound/content"
	"github.com/filehound/filehound/fhound/history"
	"github.com/filehound/filehound/fhound/search"
	"github.com/filehound/filehound/fhound/search/jobs"

	"github.com/rs/zerolog"
)

// Server wires the scanner, content engine, job registry and history store
// behind HTTP handlers.
type Server struct {
	scanner  *search.Scanner
	engine   *content.Engine
	registry *jobs.Registry
	history  *history.Store
	log      zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithHistory attaches a history store. Without one, history endpoints
// report that the feature is disabled.
func WithHistory(h *history.Store) Option {
	return func(s *Server) { s.history = h }
}

// New creates a Server.
func New(scanner *search.Scanner, engine *content.Engine, registry *jobs.Registry, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		scanner:  scanner,
		engine:   engine,
		registry: registry,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/search/filename", s.handleFilenameSearch)
	mux.HandleFunc("POST /api/search/content", s.handleContentSearch)
	mux.HandleFunc("GET /api/search/{id}/progress", s.handleProgress)
	mux.HandleFunc("GET /api/search/{id}/results", s.handleResults)
	mux.HandleFunc("POST /api/search/{id}/cancel", s.handleCancel)
	mux.HandleFunc("DELETE /api/search/{id}", s.handleEvict)

	mux.HandleFunc("GET /api/history", s.handleHistoryList)
	mux.HandleFunc("DELETE /api/history/{id}", s.handleHistoryDelete)
	mux.HandleFunc("DELETE /api/history", s.handleHistoryClear)

	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// ListenAndServe runs the API server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().Str("address", addr).Msg("API server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down API server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// searchRequest is the submission body shared by both search kinds. Content
// searches additionally use Keywords and ContextLen for the match phase;
// the scope fields select which files to read.
type searchRequest struct {
	Roots   []string       `json:"roots"`
	Filters search.Filters `json:"filters"`

	Keywords   []string `json:"keywords,omitempty"`
	ContextLen int      `json:"context_len,omitempty"`
}

func (r searchRequest) scope() search.Scope {
	return search.Scope{Roots: r.Roots, Filters: r.Filters}
}

type submitResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleFilenameSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Roots) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one root directory is required")
		return
	}

	job := jobs.New(jobs.KindFilename)
	s.registry.Register(job)
	go s.runFilenameSearch(job, req.scope())

	s.log.Info().Str("job_id", job.ID()).Strs("roots", req.Roots).Msg("Filename search submitted")
	s.writeJSON(w, http.StatusAccepted, submitResponse{ID: job.ID()})
}

func (s *Server) handleContentSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Roots) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one root directory is required")
		return
	}
	if len(req.Keywords) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one keyword is required")
		return
	}

	job := jobs.New(jobs.KindContent)
	s.registry.Register(job)
	go s.runContentSearch(job, req)

	s.log.Info().Str("job_id", job.ID()).Strs("keywords", req.Keywords).Msg("Content search submitted")
	s.writeJSON(w, http.StatusAccepted, submitResponse{ID: job.ID()})
}

// runFilenameSearch executes a filename job to completion.
func (s *Server) runFilenameSearch(job *jobs.Job, scope search.Scope) {
	records, issues, err := s.scanner.Scan(context.Background(), scope, job)
	switch {
	case errors.Is(err, search.ErrCancelled):
		job.MarkCancelled(records, nil, issues)
	case err != nil:
		s.log.Error().Err(err).Str("job_id", job.ID()).Msg("Filename search failed")
		job.Fail(err.Error())
		return
	default:
		job.CompleteFiles(records, issues)
	}
	s.saveHistory(string(jobs.KindFilename), scope, len(records))
}

// runContentSearch scans for candidate files, then searches their contents.
func (s *Server) runContentSearch(job *jobs.Job, req searchRequest) {
	scope := req.scope()
	records, scanIssues, err := s.scanner.Scan(context.Background(), scope, job)
	if err != nil && !errors.Is(err, search.ErrCancelled) {
		s.log.Error().Err(err).Str("job_id", job.ID()).Msg("Content search scan failed")
		job.Fail(err.Error())
		return
	}
	if errors.Is(err, search.ErrCancelled) {
		job.MarkCancelled(nil, nil, scanIssues)
		return
	}

	paths := make([]string, 0, len(records))
	for _, rec := range records {
		paths = append(paths, rec.Path)
	}
	job.SetTotal(len(paths))

	opts := content.Options{
		CaseSensitive: req.Filters.CaseSensitive,
		ContextLen:    req.ContextLen,
	}
	matches, issues, err := s.engine.Search(context.Background(), paths, req.Keywords, opts, job)
	issues = append(scanIssues, issues...)
	switch {
	case errors.Is(err, search.ErrCancelled):
		job.MarkCancelled(nil, matches, issues)
	case err != nil:
		s.log.Error().Err(err).Str("job_id", job.ID()).Msg("Content search failed")
		job.Fail(err.Error())
		return
	default:
		job.CompleteContent(matches, issues)
	}
	s.saveHistory(string(jobs.KindContent), scope, len(matches))
}

func (s *Server) saveHistory(kind string, scope search.Scope, resultCount int) {
	if s.history == nil {
		return
	}
	if _, err := s.history.Save(kind, scope, resultCount); err != nil {
		s.log.Warn().Err(err).Msg("Failed to record search history")
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := s.registry.Status(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	// Progress polls are frequent; strip the result payload.
	snap.Records = nil
	snap.Matches = nil
	snap.Issues = nil
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	snap, err := s.registry.Status(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if !snap.Terminal() {
		s.writeError(w, http.StatusConflict, "search is still running")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Cancel(id); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Info().Str("job_id", id).Msg("Search cancellation requested")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	s.registry.Evict(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.history.List(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]history.Entry{"entries": entries})
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	if err := s.history.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	if err := s.history.Clear(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   s.registry.Len(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn().Err(err).Msg("Failed to encode API response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
