// Package server exposes sync, extraction, trend and override operations as a JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aparm539/nwHacks2026/internal/database"
	"github.com/aparm539/nwHacks2026/internal/extract"
	"github.com/aparm539/nwHacks2026/internal/keywords"
	"github.com/aparm539/nwHacks2026/internal/syncer"
	"github.com/aparm539/nwHacks2026/internal/trends"
)

// Deps are the services behind the API.
type Deps struct {
	DB        *database.DB
	Sync      *syncer.Manager
	Extractor *extract.Extractor
	Trends    *trends.Service
	Overrides *keywords.Overrides
}

// Server is the HTTP server for the JSON API.
type Server struct {
	Deps
	router chi.Router
}

// New creates a new Server.
func New(deps Deps) *Server {
	s := &Server{Deps: deps, router: chi.NewRouter()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/sync", func(r chi.Router) {
		r.Post("/start", s.handleSyncStart)
		r.Get("/status", s.handleSyncStatus)
		r.Get("/history", s.handleSyncHistory)
		r.Get("/{runID}", s.handleSyncGet)
		r.Post("/{runID}/chunk", s.handleSyncChunk)
		r.Post("/{runID}/drive", s.handleSyncDrive)
		r.Post("/{runID}/pause", s.handleSyncPause)
	})

	r.Route("/api/keywords", func(r chi.Router) {
		r.Post("/extract", s.handleExtract)
		r.Get("/runs", s.handleExtractionRuns)
		r.Get("/trends", s.handleTrends)
		r.Get("/movers", s.handleMovers)
		r.Get("/stats", s.handleKeywordStats)
	})

	r.Route("/api/blacklist", func(r chi.Router) {
		r.Get("/", s.handleBlacklistList)
		r.Post("/", s.handleBlacklistSet)
		r.Delete("/{stem}", s.handleBlacklistRemove)
	})

	r.Route("/api/variants", func(r chi.Router) {
		r.Get("/", s.handleVariantList)
		r.Post("/", s.handleVariantAdd)
		r.Delete("/{stem}", s.handleVariantRemove)
	})
}

// envelope wraps every API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		log.Printf("API error: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(envelope{Error: err.Error()})
}

// statusFor maps expected failures to client errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, syncer.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrVariantExists):
		return http.StatusConflict
	case errors.Is(err, database.ErrVariantNesting), errors.Is(err, database.ErrInvalidAction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func runID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "runID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid run id %q", chi.URLParam(r, "runID")))
		return 0, false
	}
	return id, true
}

// dateParam validates an optional YYYY-MM-DD query parameter.
func dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return "", true
	}
	if _, err := database.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return date, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.GetStats()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "stats": stats})
}

func (s *Server) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	res, err := s.Sync.StartOrResume(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.Sync.Status(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := s.Sync.History(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleSyncGet(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	run, err := s.Sync.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleSyncChunk(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	res, err := s.Sync.ProcessChunk(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSyncDrive processes chunks until the run finishes or budget_seconds
// (default 50) runs out, for callers with a wall-clock limit.
func (s *Server) handleSyncDrive(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	budget := time.Duration(queryInt(r, "budget_seconds", 50)) * time.Second
	res, err := s.Sync.Drive(r.Context(), id, budget)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSyncPause(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	res, err := s.Sync.Pause(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	// Extraction outlives the request so a dropped client does not abandon a day midway.
	ctx := context.WithoutCancel(r.Context())
	res, err := s.Extractor.Run(ctx, extract.RunOptions{Force: queryBool(r, "force"), Date: date})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExtractionRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.DB.GetExtractionRuns(queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if runs == nil {
		runs = []database.ExtractionRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	res, err := s.Trends.Daily(r.Context(), date)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMovers(w http.ResponseWriter, r *http.Request) {
	res, err := s.Trends.Weekly(r.Context(), queryInt(r, "days", 7), queryInt(r, "limit", 10))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleKeywordStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.GetTopKeywordStats(queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if stats == nil {
		stats = []database.KeywordStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBlacklistList(w http.ResponseWriter, r *http.Request) {
	view, err := s.Overrides.ListBlacklist(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type blacklistRequest struct {
	Stem   string `json:"stem"`
	Action string `json:"action"`
}

func (s *Server) handleBlacklistSet(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		return
	}
	if req.Stem == "" {
		writeError(w, http.StatusBadRequest, errors.New("stem is required"))
		return
	}
	if err := s.Overrides.SetBlacklist(r.Context(), req.Stem, req.Action); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleBlacklistRemove(w http.ResponseWriter, r *http.Request) {
	stem := chi.URLParam(r, "stem")
	removed, err := s.Overrides.RemoveBlacklist(r.Context(), stem)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, fmt.Errorf("no blacklist override for %q", stem))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": stem})
}

func (s *Server) handleVariantList(w http.ResponseWriter, r *http.Request) {
	variants, err := s.Overrides.ListVariants(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if variants == nil {
		variants = []database.KeywordVariant{}
	}
	writeJSON(w, http.StatusOK, variants)
}

func (s *Server) handleVariantAdd(w http.ResponseWriter, r *http.Request) {
	var req keywords.VariantInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		return
	}
	if req.VariantKeyword == "" || req.ParentKeyword == "" {
		writeError(w, http.StatusBadRequest, errors.New("variant_keyword and parent_keyword are required"))
		return
	}
	v, err := s.Overrides.AddVariant(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleVariantRemove(w http.ResponseWriter, r *http.Request) {
	stem := chi.URLParam(r, "stem")
	removed, err := s.Overrides.RemoveVariant(r.Context(), stem)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, fmt.Errorf("no variant mapped for %q", stem))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": stem})
}

// Serve starts the HTTP server on the given port and shuts it down when ctx ends.
func Serve(ctx context.Context, deps Deps, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           New(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on http://%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
