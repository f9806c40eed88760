// Package http provides the HTTP API for the tutor agent.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
	"github.com/0xcro3dile/ragtutor/internal/domain/usecases"
)

// ChatAgent is the conversational surface the server drives.
type ChatAgent interface {
	SendMessage(ctx context.Context, text string) (entities.ChatMessage, error)
	Messages() []entities.ChatMessage
	Trace() []entities.TraceStep
	ActiveNode() entities.ActiveNode
	Phase() string
	Busy() bool
	HasSession() bool
	Reset() error
}

// ConfigService reads and updates the live agent configuration.
type ConfigService interface {
	Get() entities.AgentConfiguration
	Merge(patch entities.ConfigPatch) (entities.AgentConfiguration, error)
	ApplyPreset(name string) (entities.AgentConfiguration, error)
}

// Options wires the server's collaborators.
type Options struct {
	Addr    string
	Agent   ChatAgent
	Config  ConfigService
	Metrics http.Handler
	// KnowledgeSize reports the number of chunks held, for /api/status.
	KnowledgeSize func() int
	// APIKey enables bearer auth on /api routes when non-empty.
	APIKey string
	Logger *zap.Logger
}

// Server is the HTTP server for the agent API.
type Server struct {
	opts   Options
	logger *zap.Logger
	router chi.Router
}

// NewServer creates a new HTTP server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	s := &Server{opts: opts, logger: opts.Logger}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(loggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(s.opts.APIKey))

		r.Post("/api/chat", s.handleChat)
		r.Get("/api/messages", s.handleMessages)
		r.Delete("/api/messages", s.handleReset)
		r.Get("/api/traces", s.handleTraces)
		r.Get("/api/status", s.handleStatus)

		r.Route("/api/config", func(r chi.Router) {
			r.Get("/", s.handleGetConfig)
			r.Patch("/", s.handlePatchConfig)
			r.Get("/presets", s.handleListPresets)
			r.Post("/presets/{name}", s.handleApplyPreset)
		})
	})
	return r
}

// Start runs the HTTP server until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // A turn may chain many model calls
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("ragtutor server starting", zap.String("addr", s.opts.Addr))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", zap.Error(err))
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Message entities.ChatMessage `json:"message"`
	Trace   []entities.TraceStep `json:"trace"`
	Node    entities.ActiveNode  `json:"activeNode"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := s.opts.Agent.SendMessage(r.Context(), req.Message)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Message: msg,
		Trace:   s.opts.Agent.Trace(),
		Node:    s.opts.Agent.ActiveNode(),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.opts.Agent.Messages()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Agent.Reset(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"steps": s.opts.Agent.Trace()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"activeNode": s.opts.Agent.ActiveNode(),
		"phase":      s.opts.Agent.Phase(),
		"busy":       s.opts.Agent.Busy(),
		"hasSession": s.opts.Agent.HasSession(),
	}
	if s.opts.KnowledgeSize != nil {
		status["knowledgeChunks"] = s.opts.KnowledgeSize()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Config.Get())
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch entities.ConfigPatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config patch: "+err.Error())
		return
	}
	cfg, err := s.opts.Config.Merge(patch)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presets": usecases.PresetNames()})
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.opts.Config.ApplyPreset(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecases.ErrEmptyMessage), errors.Is(err, entities.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, usecases.ErrUnknownPreset):
		return http.StatusNotFound
	case errors.Is(err, usecases.ErrTurnInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
