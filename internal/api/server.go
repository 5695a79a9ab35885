package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/universalnft/marketplace-indexer/internal/assets"
	"github.com/universalnft/marketplace-indexer/internal/logger"
	"github.com/universalnft/marketplace-indexer/internal/marketplace"
	"github.com/universalnft/marketplace-indexer/internal/store"
)

// Config holds the server configuration
type Config struct {
	Debug           bool
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxSignatureAge time.Duration
}

// Server wraps the HTTP server
type Server struct {
	config     Config
	store      store.Store
	client     marketplace.Client
	resolver   assets.Resolver
	httpServer *http.Server
}

// New creates a new API server
func New(cfg Config, st store.Store, client marketplace.Client, resolver assets.Resolver) *Server {
	return &Server{
		config:   cfg,
		store:    st,
		client:   client,
		resolver: resolver,
	}
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(Recovery())
	router.Use(Logger())
	router.Use(SetupCORS())

	handler := NewHandler(s.store, s.client, s.resolver)
	SetupRoutes(router, handler, s.config.MaxSignatureAge)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server",
		zap.String("address", addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
