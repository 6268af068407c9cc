package api

import (
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/mnemosyne/pkg/memory"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
)

// Server is the API server for managing and querying memories.
type Server struct {
	config    Config
	service   *memory.Service
	retention *retention.Engine
	logger    *slog.Logger
	app       *fiber.App
}

// NewServer creates a new API server.
// The service is injected so the CLI and the server share one store handle.
func NewServer(config Config, service *memory.Service, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		config:    config,
		service:   service,
		retention: retention.New(logger),
		logger:    logger,
		app:       app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Get("/collections", s.handleListCollections)
	v1.Delete("/collections/:name", s.handleDropCollection)
	v1.Get("/records", s.handleListRecords)
	v1.Get("/sessions", s.handleListSessions)
	v1.Delete("/sessions/:id", s.handleDeleteSession)
	v1.Post("/migrate", s.handleMigrate)
	v1.Post("/summarize", s.handleSummarize)
	v1.Post("/turn", s.handleObserveTurn)
	v1.Post("/filter", s.handleFilter)

	if !config.DisableMetrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}
	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
