package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"account-graph-indexer/internal/domain/entity"
	"account-graph-indexer/internal/domain/service"
	"account-graph-indexer/internal/infrastructure/config"
	"account-graph-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// RelatedResponse is returned by the related-object query
type RelatedResponse struct {
	From   entity.NodeKey `json:"from"`
	Node   entity.NodeKey `json:"node"`
	Record entity.Record  `json:"record"`
}

// Server exposes health, indexing commands and queries over HTTP
type Server struct {
	indexing service.IndexingService
	config   *config.AppConfig
	logger   *logger.Logger
	server   *http.Server
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.AppConfig, indexing service.IndexingService, logger *logger.Logger) *Server {
	return &Server{
		indexing: indexing,
		config:   cfg,
		logger:   logger.WithComponent("http-server"),
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /index/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.indexing.Status())
	})
	mux.HandleFunc("POST /index/rebuild", s.command("rebuild", s.indexing.RebuildIndex))
	mux.HandleFunc("POST /index/halt", s.command("halt", s.indexing.HaltIndexing))
	mux.HandleFunc("POST /index/reset", s.command("reset", s.indexing.Reset))
	mux.HandleFunc("GET /related", s.handleRelated)
	return mux
}

// Start starts listening in the background
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	s.logger.Info("HTTP server started", zap.Int("port", s.config.HTTPPort))
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) command(name string, fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Info("Indexing command received", zap.String("command", name))
		fn()
		writeJSON(w, http.StatusAccepted, map[string]string{"command": name, "status": "accepted"})
	}
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind, err := entity.ParseKind(q.Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	want, err := entity.ParseKind(q.Get("want"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := q.Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}

	from := entity.NodeKey{Kind: kind, ID: id}
	node, ok := s.indexing.RelatedNode(from, want)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no %s related to %s", want, from))
		return
	}

	writeJSON(w, http.StatusOK, RelatedResponse{From: from, Node: node.Key(), Record: node.Object()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
