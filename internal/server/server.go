// Package server is the HTTP facade over an orchestrator session. It is
// presentation only; every operation semantic lives in the core packages.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/alexmahrou/mcp-server/internal/contextstore"
	qcerr "github.com/alexmahrou/mcp-server/internal/errors"
	"github.com/alexmahrou/mcp-server/internal/logging"
	"github.com/alexmahrou/mcp-server/internal/observability"
	"github.com/alexmahrou/mcp-server/internal/orchestrator"
)

// Config tunes the HTTP facade.
type Config struct {
	Addr         string
	CORSOrigins  []string
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server exposes a session over HTTP.
type Server struct {
	session    *orchestrator.Session
	engine     *gin.Engine
	httpServer *http.Server
	hub        *EventHub
	logger     logging.Logger
	startTime  time.Time
}

// New builds the server and its routes.
func New(session *orchestrator.Session, config Config, hub *EventHub, logger logging.Logger) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.Addr == "" {
		config.Addr = ":8979"
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.WriteTimeout <= 0 {
		// Long-running executions block the handler until terminal.
		config.WriteTimeout = 15 * time.Minute
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = config.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s := &Server{
		session:   session,
		engine:    engine,
		hub:       hub,
		logger:    logging.OrNop(logger),
		startTime: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      engine,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(observability.PrometheusHandler()))

	api := s.engine.Group("/api/v1")
	{
		api.GET("/operations", s.handleListOperations)
		api.POST("/operations/:name", s.handleExecute)
		api.GET("/session", s.handleSnapshot)
		api.PUT("/session", s.handleRestore)
		api.GET("/session/context/:domain", s.handleDomain)
		api.GET("/events", s.handleEvents)
	}
}

// Handler exposes the route tree, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"session": s.session.ID,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleListOperations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": s.session.Registry().Names()})
}

type executeRequest struct {
	Args map[string]any `json:"args"`
}

func (s *Server) handleExecute(c *gin.Context) {
	name := c.Param("name")
	var req executeRequest
	// An absent body means no explicit arguments.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
			return
		}
	}

	result, err := s.session.Execute(c.Request.Context(), name, req.Args)
	if err != nil {
		s.renderError(c, name, result, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// renderError maps the error taxonomy to transport codes; resolution
// failures carry the single disambiguating question instead of a trace.
func (s *Server) renderError(c *gin.Context, operation string, result *orchestrator.Result, err error) {
	var ambiguous *qcerr.DisambiguationError
	if errors.As(err, &ambiguous) {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "disambiguation",
			"operation":  operation,
			"parameter":  ambiguous.Parameter,
			"question":   ambiguous.Question(),
			"candidates": ambiguous.Candidates,
		})
		return
	}
	var missing *qcerr.MissingContextError
	if errors.As(err, &missing) {
		c.JSON(http.StatusConflict, gin.H{
			"error":     "missing-context",
			"operation": operation,
			"parameter": missing.Parameter,
			"domain":    missing.Domain,
			"question":  missing.Question(),
		})
		return
	}
	if qcerr.IsTimeout(err) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "timeout", "operation": operation, "detail": err.Error()})
		return
	}
	var invocation *qcerr.InvocationError
	if errors.As(err, &invocation) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "invocation", "operation": operation, "detail": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "operation": operation, "detail": err.Error()})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleRestore(c *gin.Context) {
	var snap contextstore.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid snapshot: %v", err)})
		return
	}
	s.session.Restore(snap)
	c.JSON(http.StatusOK, gin.H{"restored": true, "version": snap.Version})
}

func (s *Server) handleDomain(c *gin.Context) {
	domain := contextstore.Domain(c.Param("domain"))
	snap := s.session.Snapshot()
	if ds, ok := snap.Domains[domain]; ok {
		c.JSON(http.StatusOK, ds)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown domain", "domain": domain})
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "events disabled"})
		return
	}
	s.hub.Serve(c.Writer, c.Request)
}
