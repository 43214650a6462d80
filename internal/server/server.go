package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const healthCheckTimeout = 2 * time.Second

// HealthChecker is implemented by components that can report their health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Engine *gin.Engine
	Addr   string

	checkers map[string]HealthChecker
}

func New(addr string, mode string) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	s := &Server{
		Engine:   r,
		Addr:     addr,
		checkers: map[string]HealthChecker{},
	}

	r.GET("/health", s.readyHandler)
	r.GET("/health/live", s.liveHandler)
	r.GET("/health/ready", s.readyHandler)

	return s
}

// RegisterHealthCheck adds a named dependency to the readiness probe. Nil
// checkers are ignored so optional dependencies can be passed through.
func (s *Server) RegisterHealthCheck(name string, checker HealthChecker) {
	if checker == nil {
		return
	}
	s.checkers[name] = checker
}

// liveHandler reports process liveness only; no dependency I/O.
func (s *Server) liveHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readyHandler pings every registered dependency in parallel, each under its
// own timeout. One unreachable dependency makes the whole probe fail.
func (s *Server) readyHandler(c *gin.Context) {
	g, ctx := errgroup.WithContext(c.Request.Context())

	var mu sync.Mutex
	failures := map[string]string{}

	for name, checker := range s.checkers {
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			defer cancel()
			if err := checker.Ping(pingCtx); err != nil {
				slog.Error("Health check failed", "component", name, "error", err)
				mu.Lock()
				failures[name] = err.Error()
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"failures": failures,
		})
		return
	}

	components := make([]string, 0, len(s.checkers))
	for name := range s.checkers {
		components = append(components, name)
	}
	sort.Strings(components)

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"components": components,
	})
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("Starting HTTP Server...", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("Stopping HTTP Server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP Server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
