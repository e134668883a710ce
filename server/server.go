// Package server exposes the daemon over HTTP: message ingestion, the
// websocket status endpoint, and read access to topic memories, profiles,
// and summaries.
package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/danfors/topicd/config"
	"github.com/danfors/topicd/conversations"
	"github.com/danfors/topicd/extraction"
	"github.com/danfors/topicd/memory"
	"github.com/danfors/topicd/status"
)

// Replier generates the assistant's reply to a conversation turn. The reply
// content is an external collaborator; the server only cares that a reply
// happens between a matched thinking_start/thinking_end pair. guidance is
// system-prompt context (user profile, current topic, known facts) and may
// be empty.
type Replier interface {
	Reply(ctx context.Context, conversationID string, window []conversations.Message, guidance string) (string, error)
}

// Server is the HTTP front of the daemon.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	store      *memory.Store
	convs      *conversations.Store
	engine     *extraction.Engine
	publisher  *status.Publisher
	replier    Replier
	cfg        *config.ServerConfig
	logger     zerolog.Logger

	startedAt time.Time
}

// New creates a Server. replier may be nil, in which case turns are stored
// and extracted but no assistant reply is generated.
func New(cfg *config.ServerConfig, db *sql.DB, store *memory.Store, convs *conversations.Store, engine *extraction.Engine, broker *status.Broker, publisher *status.Publisher, replier Replier, logger zerolog.Logger) *Server {
	s := &Server{
		db:        db,
		store:     store,
		convs:     convs,
		engine:    engine,
		publisher: publisher,
		replier:   replier,
		cfg:       cfg,
		logger:    logger.With().Str("component", "server").Logger(),
		startedAt: time.Now(),
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Post("/conversations/{conversationID}/messages", s.handlePostMessage)
	router.Method(http.MethodGet, "/conversations/{conversationID}/status", status.NewHandler(broker, logger))
	router.Get("/users/{userID}/topic-sets/{topicSetID}/memories", s.handleGetTopicMemories)
	router.Get("/users/{userID}/topic-sets/{topicSetID}/summary", s.handleGetSummary)
	router.Get("/users/{userID}/profile", s.handleGetProfile)
	router.Get("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
