package server

import (
	"context"
	"time"

	"chatdigest/internal/auth"
	"chatdigest/internal/backend"
	"chatdigest/internal/config"
	"chatdigest/internal/embeddings"
	"chatdigest/internal/events"
	"chatdigest/internal/handlers"
	"chatdigest/internal/segment"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Server represents the application server
type Server struct {
	echo      *echo.Echo
	config    *config.Config
	logger    zerolog.Logger
	backend   *backend.Backend
	publisher *events.Publisher
	options   segment.Options
}

// New creates a new server instance. b and publisher may be nil.
func New(cfg *config.Config, b *backend.Backend, publisher *events.Publisher, logger zerolog.Logger) *Server {
	return &Server{
		config:    cfg,
		logger:    logger,
		backend:   b,
		publisher: publisher,
		options:   segment.OptionsFromConfig(cfg),
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())
	s.echo.Use(middleware.BodyLimit("16M"))

	s.echo.HideBanner = true

	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints stay at root level for monitoring
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.backend.DB()))

	api := s.echo.Group("/api", auth.Middleware(s.config.APIToken, s.logger))
	api.GET("/", handlers.RootHandler(s.config.Version))
	api.POST("/segment", handlers.SegmentHandler(s.backend.Source(), s.options, s.publisher, s.logger))
	api.GET("/cache/stats", handlers.CacheStatsHandler(s.cache(), s.backend.Counter(), s.backendName(), s.logger))
}

func (s *Server) cache() *embeddings.Cache {
	if s.backend == nil {
		return nil
	}
	return s.backend.Cache
}

func (s *Server) backendName() string {
	if s.backend == nil {
		return backend.BackendMemory
	}
	return s.backend.Name
}

// Handler exposes the configured router, mainly for tests
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
