package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elonfeng/voicepost/internal/media"
	"github.com/elonfeng/voicepost/internal/scheduler"
	"github.com/elonfeng/voicepost/internal/store"
)

// Server provides the HTTP API over the draft store.
type Server struct {
	store    store.Store
	engine   *scheduler.Engine
	driver   *scheduler.Driver
	media    *media.Library
	gatherer prometheus.Gatherer
	port     int
	logger   *slog.Logger
}

// Options holds the optional collaborators of a Server.
type Options struct {
	// Driver enables the post endpoint.
	Driver   *scheduler.Driver
	Media    *media.Library
	Gatherer prometheus.Gatherer
	Port     int
	Logger   *slog.Logger
}

// New creates a new HTTP server.
func New(s store.Store, engine *scheduler.Engine, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		store:    s,
		engine:   engine,
		driver:   opts.Driver,
		media:    opts.Media,
		gatherer: opts.Gatherer,
		port:     opts.Port,
		logger:   opts.Logger.With("component", "server"),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/drafts", s.handleListDrafts)
	mux.HandleFunc("POST /api/v1/drafts", s.handleCreateDraft)
	mux.HandleFunc("GET /api/v1/drafts/{id}", s.handleGetDraft)
	mux.HandleFunc("POST /api/v1/drafts/{id}/schedule", s.handleSchedule)
	mux.HandleFunc("DELETE /api/v1/drafts/{id}/schedule", s.handleUnschedule)
	mux.HandleFunc("POST /api/v1/drafts/{id}/post", s.handlePost)
	mux.HandleFunc("GET /api/v1/scheduled", s.handleScheduled)
	mux.HandleFunc("GET /api/v1/due", s.handleDue)
	mux.HandleFunc("GET /api/v1/slot", s.handleSlot)
	mux.HandleFunc("GET /api/v1/posted", s.handlePosted)
	mux.HandleFunc("GET /api/v1/attempts", s.handleAttempts)
	mux.HandleFunc("POST /api/v1/export", s.handleExport)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	var drafts []store.Draft
	var err error
	if status := r.URL.Query().Get("status"); status != "" {
		st := store.Status(status)
		if !st.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown status %q", status)})
			return
		}
		drafts, err = s.store.ListByStatus(r.Context(), st)
	} else {
		drafts, err = s.store.ListAll(r.Context())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeList(w, drafts)
}

type createRequest struct {
	Text            string `json:"text"`
	MediaPath       string `json:"media_path"`
	Model           string `json:"model"`
	Notes           string `json:"notes"`
	IsRetweet       bool   `json:"is_retweet"`
	OriginalTweetID string `json:"original_tweet_id"`
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	if req.IsRetweet && req.OriginalTweetID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "original_tweet_id is required for a retweet"})
		return
	}
	if req.MediaPath != "" && s.media != nil {
		path, err := s.media.Check(req.MediaPath)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		req.MediaPath = path
	}

	id, err := s.store.Create(r.Context(), store.NewDraft{
		Text:            req.Text,
		MediaPath:       req.MediaPath,
		Model:           req.Model,
		Notes:           req.Notes,
		IsRetweet:       req.IsRetweet,
		OriginalTweetID: req.OriginalTweetID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}

	id := r.PathValue("id")
	if err := s.engine.Schedule(r.Context(), id, req.Time); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetDraft(w, r)
}

func (s *Server) handleUnschedule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Unschedule(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetDraft(w, r)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if s.driver == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "publishing is not configured"})
		return
	}

	out, err := s.driver.PublishDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := map[string]string{
		"draft_id": out.DraftID,
		"status":   out.Status,
		"tweet_id": out.TweetID,
	}
	if out.Err != nil {
		resp["error"] = out.Err.Error()
	}
	status := http.StatusOK
	if !out.OK() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleScheduled(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.engine.ListScheduled(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeList(w, drafts)
}

func (s *Server) handleDue(w http.ResponseWriter, r *http.Request) {
	now, ok := parseAt(w, r)
	if !ok {
		return
	}
	drafts, err := s.engine.DuePosts(r.Context(), now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeList(w, drafts)
}

func (s *Server) handleSlot(w http.ResponseWriter, r *http.Request) {
	now, ok := parseAt(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"at":   now.Format(time.RFC3339),
		"slot": s.engine.IsStrategySlot(now),
	})
}

func (s *Server) handlePosted(w http.ResponseWriter, r *http.Request) {
	posted, err := s.store.ListPosted(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeList(w, posted)
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.store.ListAttempts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeList(w, attempts)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	path, err := s.store.ExportSafe(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

// parseAt reads the optional RFC 3339 "at" query parameter.
func parseAt(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	at := r.URL.Query().Get("at")
	if at == "" {
		return time.Now(), true
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at must be RFC 3339"})
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case store.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeList[T any](w http.ResponseWriter, data []T) {
	if data == nil {
		data = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  data,
		"count": len(data),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
