// Package api provides the HTTP status API for mgapphost.
// It uses Echo framework to serve read-only JSON views of the running
// application model: its resources, their endpoints and the manifest.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"evalgo.org/mgapphost/internal/config"
	"evalgo.org/mgapphost/internal/orchestration"
	"evalgo.org/mgapphost/internal/validation"
	"evalgo.org/mgapphost/pkg/appmodel"
)

// Status reports what the orchestrator has created. *orchestration.Orchestrator
// satisfies it.
type Status interface {
	Running() bool
	RunID() string
	State(name string) (orchestration.ResourceState, bool)
}

// Server represents the mgapphost status API server.
type Server struct {
	echo      *echo.Echo
	app       *appmodel.Application
	status    Status
	config    config.ServerConfig
	logger    *zap.SugaredLogger
	validator *validation.Validator
	startedAt time.Time
}

// New creates a new API server instance. status may be nil when nothing
// runs the model, e.g. for manifest-only use.
func New(cfg config.ServerConfig, app *appmodel.Application, status Status, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	e := echo.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug

	// Set custom error handler
	e.HTTPErrorHandler = NewHTTPErrorHandler(logger)

	server := &Server{
		echo:      e,
		app:       app,
		status:    status,
		config:    cfg,
		logger:    logger,
		validator: validation.New(),
		startedAt: time.Now(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(RequestLogger(s.logger))
	s.echo.Use(SecurityHeaders)
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	jsonOnly := Accepts(echo.MIMEApplicationJSON)

	s.echo.GET("/health", s.healthCheck, jsonOnly)
	s.echo.GET("/metrics", metricsHandler(s.app, s.status))

	v1 := s.echo.Group("/api/v1")

	resources := v1.Group("/resources", jsonOnly)
	resources.GET("", s.listResources)
	resources.GET("/:name", s.getResource, ValidateResourceName(s.validator))

	v1.GET("/manifest", s.getManifest, Accepts(echo.MIMEApplicationJSON, mimeApplicationYAML))
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server and blocks until it is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.echo.Server.ReadTimeout = s.config.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.WriteTimeout

	s.logger.Infow("Starting status API", "address", "http://"+addr, "debug", s.config.Debug)

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status API failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Shutting down status API")

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}
