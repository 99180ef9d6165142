// Package adminapi exposes the cache and event-store administrative
// operations of spec.md §6 as plain Echo v5 handlers. Transport-level
// authentication is out of scope (spec.md §1 Non-goals) — a real deployment
// wires these routes behind its own auth middleware.
package adminapi

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/research-mcp/pkg/cache"
	"github.com/codeready-toolchain/research-mcp/pkg/eventstore"
	"github.com/codeready-toolchain/research-mcp/pkg/orchestrator"
	"github.com/codeready-toolchain/research-mcp/pkg/version"
)

// Server is the administrative HTTP server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cache      *cache.Cache
	events     *eventstore.Store
	metrics    *orchestrator.MetricsRegistry
}

// NewServer creates an administrative API server wired to the running
// cache, event store, and orchestrator metrics registry.
func NewServer(c *cache.Cache, es *eventstore.Store, metrics *orchestrator.MetricsRegistry) *Server {
	e := echo.New()
	e.Use(securityHeaders())
	e.Use(middleware.BodyLimit(1 << 20))

	s := &Server{echo: e, cache: c, events: es, metrics: metrics}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/admin/v1")
	v1.GET("/cache/stats", s.cacheStatsHandler)
	v1.POST("/cache/invalidate", s.cacheInvalidateHandler)
	v1.POST("/cache/namespaces/:namespace/clear", s.cacheClearNamespaceHandler)
	v1.POST("/cache/flush", s.cacheFlushHandler)

	v1.GET("/events/stats", s.eventStatsHandler)
	v1.POST("/events/users/:userID/erase", s.eraseUserHandler)

	v1.GET("/metrics/tools", s.toolMetricsHandler)
}

// Start starts the HTTP server on the given address and blocks until the
// server stops; callers run it in its own goroutine.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{Status: "healthy", Version: version.Full()})
}

func (s *Server) cacheStatsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.cache.Stats())
}

// invalidateRequest identifies a single cache entry the way the orchestrator
// derives its key: a namespace plus the arguments struct used at lookup
// time.
type invalidateRequest struct {
	Namespace string `json:"namespace"`
	Arguments any    `json:"arguments"`
}

func (s *Server) cacheInvalidateHandler(c *echo.Context) error {
	var req invalidateRequest
	if err := c.Bind(&req); err != nil {
		return mapServiceError(errBadRequest(err))
	}
	if req.Namespace == "" {
		return mapServiceError(errBadRequest(errMissingNamespace))
	}
	s.cache.Invalidate(req.Namespace, req.Arguments)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) cacheClearNamespaceHandler(c *echo.Context) error {
	namespace := c.Param("namespace")
	removed := s.cache.ClearNamespace(namespace)
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) cacheFlushHandler(c *echo.Context) error {
	s.cache.Flush()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) eventStatsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.events.Stats())
}

func (s *Server) eraseUserHandler(c *echo.Context) error {
	userID := c.Param("userID")
	if userID == "" {
		return mapServiceError(errBadRequest(errMissingUserID))
	}
	erased := s.events.EraseUser(userID)
	return c.JSON(http.StatusOK, map[string]int{"erased": erased})
}

func (s *Server) toolMetricsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.metrics.Stats())
}
