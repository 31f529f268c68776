// Package server exposes the matching engine and its surrounding entities
// over HTTP. Routes, auth, and response shapes follow the first version of
// this API; callers depend on the exact JSON field names and the ERR-10xx
// error codes.
package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callsift/callsift/internal/config"
	"github.com/callsift/callsift/internal/health"
	"github.com/callsift/callsift/internal/match"
	"github.com/callsift/callsift/internal/observe"
	"github.com/callsift/callsift/internal/store"
)

// Server wraps the Fiber app together with its dependencies.
type Server struct {
	App *fiber.App

	cfg     *config.Config
	store   store.Store
	matcher *match.Matcher
	metrics *observe.Metrics
	log     *slog.Logger
}

// New creates a fully routed server. The health handler's checkers typically
// probe the database; they are supplied by the caller so tests can omit them.
func New(cfg *config.Config, st store.Store, m *match.Matcher, metrics *observe.Metrics, checkers ...health.Checker) *Server {
	app := fiber.New(fiber.Config{
		AppName: "callsift",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal Server Error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			return c.Status(code).JSON(fiber.Map{"detail": message})
		},
	})

	s := &Server{
		App:     app,
		cfg:     cfg,
		store:   st,
		matcher: m,
		metrics: metrics,
		log:     slog.Default(),
	}

	app.Use(recover.New())
	app.Use(observe.Middleware(metrics))

	s.registerRoutes(checkers...)
	return s
}

// registerRoutes wires all endpoints. Probe and scrape endpoints stay outside
// the API-key middleware.
func (s *Server) registerRoutes(checkers ...health.Checker) {
	health.New(checkers...).Register(s.App)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.App.Group("/")
	if s.cfg.Auth.AuthRequired() {
		api.Use(s.requireAPIKey)
	}

	api.Post("/match/keywords", s.handleMatchKeywords)
	api.Post("/match/keywords/export", s.handleExportKeywords)

	api.Post("/keywords/replace", s.handleReplaceKeywords)
	api.Get("/keywords", s.handleGetKeywords)
	api.Get("/builder", s.handleGetBuilder)

	api.Post("/keys", s.handleCreateKey)
	api.Get("/keys", s.handleListKeys)
	api.Put("/keys/:id/activate", s.handleSetKeyActive(true))
	api.Put("/keys/:id/deactivate", s.handleSetKeyActive(false))
}

// Start begins serving on the configured listen address. It blocks until the
// listener fails or [Server.Shutdown] is called.
func (s *Server) Start() error {
	s.log.Info("server listening", "addr", s.cfg.Server.ListenAddr)
	return s.App.Listen(s.cfg.Server.ListenAddr, fiber.ListenConfig{
		DisableStartupMessage: true,
	})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.App.Shutdown()
}

// matchContext is the validated input of the match and export endpoints:
// the conversation, its project, transcription, and keyword set.
type matchContext struct {
	conversation *store.Conversation
	project      *store.Project
	trans        *store.Transcription
	keywords     *store.KeywordRecord
}

// loadMatchContext performs the shared lookup-and-validate sequence of the
// match endpoints. On failure it writes the error response and returns
// (nil, nil); the handler just returns.
func (s *Server) loadMatchContext(c fiber.Ctx, conversationID string, projectID int, builderName string) (*matchContext, error) {
	ctx := c.Context()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, jsonError(c, http.StatusNotFound, apiError{
			Code:           errConversationNotFound,
			Message:        "Conversation Id not Match",
			ConversationID: conversationID,
		})
	}
	if conv.ProjectID != projectID {
		return nil, jsonError(c, http.StatusNotFound, apiError{
			Code:           errProjectMismatch,
			Message:        "The provided project ID doesn't correspond to this conversation.",
			ConversationID: conversationID,
			ProjectID:      strconv.Itoa(projectID),
		})
	}

	project, err := s.store.GetProjectByBuilder(ctx, projectID, builderName)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, jsonError(c, http.StatusNotFound, apiError{
			Code:           errBuilderMismatch,
			Message:        "The provided project does not have an associated builder name",
			ConversationID: conversationID,
			ProjectID:      strconv.Itoa(projectID),
			BuilderName:    builderName,
		})
	}

	trans, err := s.store.GetTranscription(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if trans == nil || trans.TranscriptText == "" {
		return nil, jsonError(c, http.StatusNotFound, apiError{
			Code:           errTranscriptionMissing,
			Message:        "Transcription Not found for this conversation",
			ConversationID: conversationID,
			ProjectID:      strconv.Itoa(projectID),
			BuilderName:    builderName,
		})
	}

	rec, err := s.store.GetKeywords(ctx, projectID, builderName)
	if err != nil {
		return nil, err
	}
	if rec == nil || len(rec.Set) == 0 {
		return nil, jsonError(c, http.StatusNotFound, apiError{
			Code:        errKeywordsMissing,
			Message:     "Keyword not found for the given project and builder",
			ProjectID:   strconv.Itoa(projectID),
			BuilderName: builderName,
		})
	}

	return &matchContext{
		conversation: conv,
		project:      project,
		trans:        trans,
		keywords:     rec,
	}, nil
}
