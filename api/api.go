package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/strata"
)

// ErrorResponse is the JSON error envelope for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`

	// RequiredTrust/ActualTrust are set on consent rejections.
	RequiredTrust *float64 `json:"required_trust,omitempty"`
	ActualTrust   *float64 `json:"actual_trust,omitempty"`

	// RequiredConsensus/ActualConsensus are set on consensus rejections.
	RequiredConsensus *float64 `json:"required_consensus,omitempty"`
	ActualConsensus   *float64 `json:"actual_consensus,omitempty"`
}

// Server is the API server for the strata memory subsystem.
type Server struct {
	config  Config
	manager *strata.Manager
	logger  *zap.Logger
	app     *fiber.App
}

// NewServer creates a new API server. The manager is injected to allow
// sharing with other components.
func NewServer(config Config, manager *strata.Manager, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		manager: manager,
		logger:  logger,
		app:     app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/health", s.handleHealth)
	app.Post("/v1/store", s.handleStore)
	app.Post("/v1/search", s.handleSearch)
	app.Post("/v1/fuse", s.handleFuse)
	app.Post("/v1/consolidate", s.handleConsolidate)
	app.Post("/v1/sync", s.handleSync)
	app.Get("/v1/patterns/:agent", s.handlePatterns)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
