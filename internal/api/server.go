// Package api exposes the HTTP surface used by the external review tool:
// draft listing and review actions, the run log, stats and health.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/siyinging/social-publisher/internal/logger"
	"github.com/siyinging/social-publisher/internal/metrics"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	healthCheckTimeout  = 2 * time.Second
	corsMaxAge          = 12 * time.Hour
	shutdownTimeout     = 10 * time.Second
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Server is the publisher's HTTP server.
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
}

// Options configures the server.
type Options struct {
	Address     string
	Debug       bool
	CORSOrigins []string

	Handlers *Handlers
	Metrics  *metrics.Metrics
	Checks   map[string]HealthCheck
}

// NewServer builds the gin engine and wires all routes.
func NewServer(opts Options, log logger.Logger) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))
	engine.Use(corsMiddleware(opts.CORSOrigins))

	engine.GET("/health", healthHandler(opts.Checks))
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/drafts", opts.Handlers.ListDrafts)
		v1.GET("/items/:id", opts.Handlers.GetItem)
		v1.POST("/items/:id/approve", opts.Handlers.ApproveItem)
		v1.POST("/items/:id/reject", opts.Handlers.RejectItem)
		v1.GET("/runs", opts.Handlers.ListRuns)
		v1.GET("/stats", opts.Handlers.GetStats)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Address,
			Handler:      engine,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		logger: log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", logger.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		deps := make(gin.H, len(checks))
		for name, check := range checks {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
			err := check(ctx)
			cancel()
			if err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				deps[name] = "ok"
			}
		}

		health := "healthy"
		if status != http.StatusOK {
			health = "degraded"
		}
		c.JSON(status, gin.H{"status": health, "dependencies": deps})
	}
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("elapsed", time.Since(start)))
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Accept-Encoding",
			"Authorization", "Cache-Control", "X-Requested-With",
		},
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	})
}
