// Package api provides the HTTP server for magicgate. It wires the access
// middleware in front of a reverse proxy to the configured upstream and
// exposes the management API for inspecting protected paths and issuing
// tokens.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/magicgate/magicgate/internal/api/handlers/management"
	"github.com/magicgate/magicgate/internal/api/middleware"
	"github.com/magicgate/magicgate/internal/config"
	"github.com/magicgate/magicgate/internal/logging"
	"github.com/magicgate/magicgate/internal/routes"
	"github.com/magicgate/magicgate/internal/signal"
	"github.com/magicgate/magicgate/internal/token"
)

// Server is the magicgate HTTP server.
type Server struct {
	engine *gin.Engine
	server *http.Server

	cfg      *config.Config
	registry *routes.Registry
	store    *token.Store
	guard    *middleware.Guard
	mgmt     *management.Handler
}

// NewServer creates and initializes a server instance: gin engine,
// logging and recovery middleware, the access guard, the management API
// and the upstream proxy.
func NewServer(cfg *config.Config, registry *routes.Registry, store *token.Store, signals *signal.Dispatcher) (*Server, error) {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logging.AccessLogger())
	engine.Use(logging.Recovery())

	guard, err := middleware.NewGuard(cfg, registry, store, signals)
	if err != nil {
		return nil, err
	}

	s := &Server{
		engine:   engine,
		cfg:      cfg,
		registry: registry,
		store:    store,
		guard:    guard,
		mgmt:     management.NewHandler(cfg, registry, store),
	}
	if err = s.setupRoutes(); err != nil {
		return nil, err
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}
	return s, nil
}

// Guard exposes the access middleware, mainly so callers can install a
// custom forbidden handler.
func (s *Server) Guard() *middleware.Guard {
	return s.guard
}

// setupRoutes configures the management group and the gated catch-all.
func (s *Server) setupRoutes() error {
	mgmt := s.engine.Group("/v0/management")
	mgmt.Use(s.mgmt.Middleware())
	{
		mgmt.GET("/paths", s.mgmt.ListPaths)
		mgmt.GET("/tokens", s.mgmt.ListTokens)
		mgmt.POST("/tokens", s.mgmt.CreateToken)
		mgmt.DELETE("/tokens/:id", s.mgmt.RevokeToken)
		mgmt.POST("/tokens/cleanup", s.mgmt.CleanupTokens)
	}

	forward, err := s.upstreamHandler()
	if err != nil {
		return err
	}
	s.engine.NoRoute(s.guard.Handler(), forward)
	return nil
}

// upstreamHandler builds the pass-through handler behind the guard: a
// reverse proxy when an upstream is configured, otherwise a placeholder
// that makes the decision visible.
func (s *Server) upstreamHandler() (gin.HandlerFunc, error) {
	if s.cfg.Upstream == "" {
		return func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		}, nil
	}
	target, err := url.Parse(s.cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("api: invalid upstream %q: %w", s.cfg.Upstream, err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Errorf("upstream %s unreachable: %v", target, err)
		w.WriteHeader(http.StatusBadGateway)
	}
	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}

// UpdateConfig swaps in a freshly loaded configuration after a hot-reload.
// The route registry is repopulated in place by the reload callback, so
// every component keeps its reference.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.cfg = cfg
	s.mgmt.SetConfig(cfg)
	s.guard.SetConfig(cfg)
	log.Infof("configuration reloaded, %d protected paths", s.registry.Len())
}

// Start begins listening for and serving HTTP requests. Blocking; returns
// only on an unrecoverable error.
func (s *Server) Start() error {
	log.Debugf("starting server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server without interrupting active
// connections.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	log.Debug("server stopped")
	return nil
}
