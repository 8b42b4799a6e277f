// Package server exposes the tool-execution gateway and the HIL task API
// over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"handoff/internal/logging"
)

// Options configures the HTTP server.
type Options struct {
	Addr           string
	AllowedOrigins []string
}

// Server wraps the gin engine and the underlying http.Server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
}

// New assembles the router over the given components.
func New(opts Options, api *APIHandler, health *HealthChecker, stream *StreamHub, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) == 0 || (len(opts.AllowedOrigins) == 1 && opts.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	engine.Use(cors.New(corsConfig))

	engine.GET("/health", health.Handler)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := engine.Group("/api")
	{
		apiGroup.POST("/tool/execute", api.ExecuteTool)
		apiGroup.GET("/tools", api.ListTools)

		apiGroup.GET("/hil/tasks", api.ListHILTasks)
		apiGroup.GET("/hil/:hil_id", api.GetHILTask)
		apiGroup.POST("/hil/complete/:hil_id", api.CompleteHILTask)
		apiGroup.POST("/hil/cancel/:hil_id", api.CancelHILTask)

		apiGroup.GET("/events/ws", stream.HandleWS)
		apiGroup.GET("/events/:call_id", api.GetEventHistory)
	}

	return &Server{
		engine: engine,
		httpServer: &http.Server{
			Addr:        opts.Addr,
			Handler:     engine,
			ReadTimeout: 30 * time.Second,
			// No write timeout: human_in_loop calls may block indefinitely.
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
		logger: logging.OrNop(logger),
	}
}

// Engine exposes the router, mainly for httptest-based tests.
func (s *Server) Engine() http.Handler {
	return s.engine
}

// Run serves until ListenAndServe returns. http.ErrServerClosed (the normal
// shutdown path) is not an error.
func (s *Server) Run() error {
	s.logger.Info("Server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.httpServer.Shutdown(ctx)
}
