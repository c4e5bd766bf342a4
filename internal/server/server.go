// Package server exposes the admin HTTP surface: health and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"task-planner/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// ReminderStatus reports the scheduler's live state.
type ReminderStatus interface {
	Pending() int
}

// Server is the admin HTTP server.
type Server struct {
	router    *gin.Engine
	reminders ReminderStatus
	logger    logging.Logger
	started   time.Time
}

// New builds the router. gatherer may be nil to serve the default registry.
func New(reminders ReminderStatus, gatherer prometheus.Gatherer, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router:    router,
		reminders: reminders,
		logger:    logging.OrNop(logger),
		started:   time.Now(),
	}

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin http listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	pending := 0
	if s.reminders != nil {
		pending = s.reminders.Pending()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"pending_reminders": pending,
		"uptime_seconds":    int64(time.Since(s.started).Seconds()),
	})
}
