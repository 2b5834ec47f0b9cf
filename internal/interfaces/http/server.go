// internal/interfaces/http/server.go
package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/config"
	"github.com/your-org/storefront-engine/internal/domain/access"
	"github.com/your-org/storefront-engine/internal/domain/session"
	"github.com/your-org/storefront-engine/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-engine/internal/interfaces/http/middleware"
	"github.com/your-org/storefront-engine/internal/interfaces/http/routes"
	"github.com/your-org/storefront-engine/internal/pkg/auth"
)

// Dependencies are the collaborators the server routes requests to
type Dependencies struct {
	Services routes.Services
	Sessions *session.Manager
	Gate     *access.Gate
	JWT      *auth.JWTManager
	Redis    *redis.Client // nil disables rate limiting
	Health   []handlers.HealthCheck
}

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	deps       Dependencies
	log        logrus.FieldLogger
	gin        *gin.Engine
	httpServer *http.Server
}

// NewServer creates a new HTTP server instance with its routes installed
func NewServer(cfg *config.Config, deps Dependencies, log logrus.FieldLogger) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		log:    log.WithField("component", "http"),
		gin:    gin.New(),
	}
	if err := s.gin.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		s.log.WithError(err).Warn("⚠️ Invalid trusted proxies, trusting none")
		_ = s.gin.SetTrustedProxies(nil)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler exposes the router, for tests
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Server.Port,
		Handler:      s.gin,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.log.Infof("🚀 HTTP Server starting on port %s", s.config.Server.Port)
	s.log.Infof("🌐 API Base URL: http://localhost:%s%s", s.config.Server.Port, s.config.Server.BasePath)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("🛑 Shutting down HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.log.Info("✅ HTTP server stopped gracefully")
	return nil
}

// setupMiddleware installs the global middleware chain
func (s *Server) setupMiddleware() {
	s.gin.Use(gin.Recovery())
	s.gin.Use(middleware.RequestID())
	s.gin.Use(middleware.Logger(s.log))
	s.gin.Use(middleware.CORS(s.config.Security))
	s.gin.Use(middleware.SecurityHeaders())
	s.gin.Use(middleware.RateLimit(s.config.Security.RateLimitPerMinute, s.deps.Redis, s.log))
	s.gin.Use(middleware.RequestSizeLimit(1 << 20))
	s.gin.Use(middleware.Timeout(s.config.Server.RequestTimeout))
}

// setupRoutes installs health and the API group
func (s *Server) setupRoutes() {
	health := handlers.NewHealthHandler(s.config.App.Version, s.deps.Sessions.Len, s.deps.Health...)
	s.gin.GET("/health", health.Health)

	api := s.gin.Group(s.config.Server.BasePath)
	api.GET("/health", health.Health)

	api.Use(middleware.Identity(s.deps.JWT, s.log))
	api.Use(middleware.AccessGate(s.deps.Gate, s.config.Server.BasePath))
	api.Use(middleware.Session(s.deps.Sessions, s.config.Session, s.log))

	routes.SetupRoutes(api, s.deps.Services, s.log)
}
