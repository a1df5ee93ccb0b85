// Package server exposes the agent over HTTP: a health probe, the invoke
// seam, and read-only session endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saifguard/saifguard/internal/model"
	"github.com/saifguard/saifguard/internal/report"
	"github.com/saifguard/saifguard/internal/session"
	"github.com/saifguard/saifguard/internal/taxonomy"
)

// Options configures the HTTP server.
type Options struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

func (o Options) withDefaults() Options {
	if o.Port == 0 {
		o.Port = 8080
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 15 * time.Second
	}
	if o.WriteTimeout <= 0 {
		// Invoke turns include model calls.
		o.WriteTimeout = 120 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	return o
}

// Server routes HTTP traffic to the session manager.
type Server struct {
	manager *session.Manager
	tax     *taxonomy.Taxonomy
	sink    report.Sink
	opts    Options
}

// New wires the server. A nil sink disables publishing.
func New(manager *session.Manager, tax *taxonomy.Taxonomy, sink report.Sink, opts Options) *Server {
	if sink == nil {
		sink = report.NoopSink{}
	}
	return &Server{manager: manager, tax: tax, sink: sink, opts: opts.withDefaults()}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/invoke", s.handleInvoke)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/sessions/{id}", s.handleGetSession)
	r.Get("/v1/sessions/{id}/discrepancies", s.handleDiscrepancies)
	r.Post("/v1/sessions/{id}/publish", s.handlePublish)

	return r
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.opts.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("server: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("server: listening", zap.Int("port", s.opts.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.tax == nil || s.tax.Len() == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "reason": "control taxonomy not loaded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "controls": s.tax.Len()})
}

type invokeRequest struct {
	SessionID   string             `json:"session_id"`
	Message     string             `json:"message"`
	Attachments []invokeAttachment `json:"attachments,omitempty"`
}

type invokeAttachment struct {
	Kind    string `json:"kind"`
	Ref     string `json:"ref"`
	Content string `json:"content"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	attachments := make([]model.RawArtifact, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		kind := model.ArtifactKind(a.Kind)
		if !kind.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown attachment kind %q", a.Kind))
			return
		}
		attachments = append(attachments, model.RawArtifact{
			Kind:    kind,
			Ref:     a.Ref,
			Payload: []byte(a.Content),
		})
	}

	resp, err := s.manager.Handle(r.Context(), req.SessionID, req.Message, attachments)
	if err != nil {
		zap.L().Error("server: invoke failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "invoke failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.manager.List()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := s.manager.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDiscrepancies(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	set, err := s.manager.Discrepancies(r.Context(), id)
	if err != nil {
		zap.L().Error("server: reconcile failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	set, err := s.manager.Discrepancies(r.Context(), id)
	if err != nil {
		zap.L().Error("server: reconcile failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}

	msgID, err := s.sink.Publish(r.Context(), id, set)
	if err != nil {
		if errors.Is(err, report.ErrPublishingDisabled) {
			writeJSON(w, http.StatusConflict, map[string]string{"status": "publishing disabled"})
			return
		}
		zap.L().Error("server: publish failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusBadGateway, "publish failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "published", "message_id": msgID})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
