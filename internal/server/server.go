package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ipgeo-ws/config"
	"ipgeo-ws/internal/middleware"
	"ipgeo-ws/internal/protocol"
	"ipgeo-ws/internal/session"
	"ipgeo-ws/internal/transport/httpdto"
	"ipgeo-ws/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Variant selects how the listener routes handshakes.
type Variant string

const (
	// VariantProxy upgrades on every path.
	VariantProxy Variant = "proxy"
	// VariantHeartbeat upgrades only on Options.Path and answers 404 elsewhere.
	VariantHeartbeat Variant = "heartbeat"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	variant    Variant
}

// Options describes one listener.
type Options struct {
	Variant Variant
	Port    string
	Path    string
	Handler protocol.Handler
	Session session.Config
	// Limiter is optional; nil disables handshake rate limiting.
	Limiter middleware.HandshakeLimiter
}

func New(cfg *config.Config, l *logger.Logger, opts Options) *Server {
	switch cfg.AppMode {
	case logger.ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case logger.TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	if l == nil {
		l = logger.NewNop()
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.Use(gin.Recovery())

	s := &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", opts.Port),
			Handler: engine,
		},
		engine:  engine,
		config:  cfg,
		logger:  l,
		variant: opts.Variant,
	}
	s.setupRoutes(opts)
	return s
}

func (s *Server) setupRoutes(opts Options) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	ws := NewWebSocketHandler(opts.Handler, opts.Session, session.NewWebSocketLogger(s.logger.Logger))

	var chain []gin.HandlerFunc
	if opts.Limiter != nil {
		chain = append(chain, middleware.HandshakeRateLimitMiddleware(opts.Limiter, s.logger))
	}
	chain = append(chain, ws.Handle)

	switch opts.Variant {
	case VariantHeartbeat:
		path := opts.Path
		if path == "" {
			path = config.DefaultHeartbeatPath
		}
		s.engine.GET(path, chain...)
		s.engine.NoRoute(func(c *gin.Context) {
			s.logger.WithContext(c.Request.Context()).Sugar().Infof("handshake rejected: %s %s not found", c.Request.Method, c.Request.URL.Path)
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("not found", "NOT_FOUND"))
		})
	default:
		s.engine.NoRoute(chain...)
	}
}

// Handler exposes the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until SIGINT or SIGTERM, then shuts the listener down.
// Sessions already running are left to end on their own.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the %s server on port %s...", s.variant, s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		s.logger.Errorf("Error in starting the server: %s", err)
		return err
	case <-quit:
	}

	s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		return err
	}

	s.logger.Infof("Server stopped gracefully")
	return nil
}
