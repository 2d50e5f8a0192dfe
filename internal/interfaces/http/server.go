// Package http exposes the request service over REST.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/application/service"
	"github.com/garyjia/spend-requests/internal/application/store"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdempotencyTTL time.Duration
	Version        string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdempotencyTTL: 24 * time.Hour,
		Version:        "dev",
	}
}

// Server is the HTTP server adapter
type Server struct {
	config      ServerConfig
	httpServer  *http.Server
	router      *gin.Engine
	service     service.RequestService
	store       *store.Store
	idempotency port.IdempotencyRepository
	subs        service.SubRegistrarService
	logger      Logger
	now         func() time.Time
}

// ServerOption configures optional server dependencies
type ServerOption func(*Server)

// WithSubRegistrar mounts the document collection endpoints under /api/sub-registrar
func WithSubRegistrar(svc service.SubRegistrarService) ServerOption {
	return func(s *Server) {
		s.subs = svc
	}
}

// NewServer creates a new HTTP server over the request service.
// The store backs the statistics endpoint and may be nil.
func NewServer(
	config ServerConfig,
	svc service.RequestService,
	st *store.Store,
	idempotency port.IdempotencyRepository,
	logger Logger,
	opts ...ServerOption,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = 24 * time.Hour
	}

	server := &Server{
		config:      config,
		router:      gin.New(),
		service:     svc,
		store:       st,
		idempotency: idempotency,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"user_id", c.GetHeader(HeaderUserID),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.service, s.store, s.logger, s.config.Version)
	idempotent := s.idempotencyMiddleware()

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api", s.identityMiddleware())
	{
		api.GET("/requests", handlers.ListRequests)
		api.POST("/requests", idempotent, handlers.CreateDraft)
		api.GET("/requests/stats", handlers.Stats)
		api.GET("/requests/:id", handlers.GetRequest)
		api.PUT("/requests/:id", handlers.UpdateDraft)
		api.POST("/requests/:id/submit", idempotent, handlers.Submit)
		api.POST("/requests/:id/classify", handlers.Classify)
		api.POST("/requests/:id/distributor-action", handlers.DistributorAction)
		api.POST("/requests/:id/status", handlers.UpdateStatus)
		api.GET("/requests/:id/events", handlers.GetEvents)
		api.GET("/requests/:id/rejection-reason", handlers.RejectionReason)

		api.GET("/register/export", handlers.ExportRegister)
	}

	if s.subs != nil {
		sub := NewSubRegistrarHandlers(s.subs, s.logger)
		group := api.Group("/sub-registrar")
		group.GET("/assignments", sub.MyAssignments)
		group.GET("/assignments/all", sub.AllAssignments)
		group.POST("/assignments", sub.Assign)
		group.GET("/reports/:request_id", sub.GetReport)
		group.POST("/save-draft", sub.SaveDraft)
		group.POST("/publish-report", sub.PublishReport)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
