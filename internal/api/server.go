// Package api exposes the monitor's read operations over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hourswatch/internal/calendar"
	"hourswatch/internal/metrics"
	"hourswatch/internal/service"
	"hourswatch/internal/storage"
)

// Queries is the read surface served by the API.
type Queries interface {
	GetCalendarData(ctx context.Context, start, end string) (service.CalendarData, error)
	GetEventsForDate(ctx context.Context, date string) ([]storage.DailyEvent, error)
	GetRecentSamples(ctx context.Context, limit int) ([]storage.Sample, error)
	GetLatestSample(ctx context.Context) (storage.Sample, error)
}

// Server wraps the gin engine and its HTTP listener.
type Server struct {
	queries Queries
	metrics *metrics.Registry
	maxDays int
	logger  zerolog.Logger
	engine  *gin.Engine
}

// NewServer builds the router. reg may be nil, in which case /metrics is not mounted.
func NewServer(queries Queries, reg *metrics.Registry, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		queries: queries,
		metrics: reg,
		logger:  logger.With().Str("component", "api").Logger(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), cors())

	r.GET("/health", s.health)
	if reg != nil {
		r.GET("/metrics", s.metricsText)
	}

	api := r.Group("/api")
	{
		api.GET("/calendar", s.getCalendar)
		api.GET("/events/:date", s.getEvents)
		api.GET("/status-checks", s.getStatusChecks)
		api.GET("/status/latest", s.getLatestStatus)
	}

	s.engine = r
	return s
}

// WithMaxCalendarDays caps the number of days one calendar request may span.
// n <= 0 leaves requests unbounded.
func (s *Server) WithMaxCalendarDays(n int) *Server {
	s.maxDays = n
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("api listening")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("api stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) metricsText(c *gin.Context) {
	c.Header("Content-Type", metrics.ContentType)
	c.Status(http.StatusOK)
	if err := s.metrics.WriteText(c.Writer); err != nil {
		s.logger.Error().Err(err).Msg("render metrics")
	}
}

func (s *Server) getCalendar(c *gin.Context) {
	start := c.Query("startDate")
	end := c.Query("endDate")
	if start == "" || end == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startDate and endDate are required"})
		return
	}
	if s.maxDays > 0 {
		if n, err := calendar.DayCount(start, end); err == nil && n > s.maxDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date range exceeds " + strconv.Itoa(s.maxDays) + " days"})
			return
		}
	}

	data, err := s.queries.GetCalendarData(c.Request.Context(), start, end)
	if err != nil {
		s.fail(c, err, "fetch calendar data")
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) getEvents(c *gin.Context) {
	events, err := s.queries.GetEventsForDate(c.Request.Context(), c.Param("date"))
	if err != nil {
		s.fail(c, err, "fetch events")
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) getStatusChecks(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	samples, err := s.queries.GetRecentSamples(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err, "fetch status checks")
		return
	}
	c.JSON(http.StatusOK, samples)
}

func (s *Server) getLatestStatus(c *gin.Context) {
	sample, err := s.queries.GetLatestSample(c.Request.Context())
	if err != nil {
		s.fail(c, err, "fetch latest status")
		return
	}
	c.JSON(http.StatusOK, sample)
}

// fail maps domain errors onto status codes; everything else is a 500.
func (s *Server) fail(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, calendar.ErrInvalidRange), errors.Is(err, service.ErrInvalidDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoSamples):
		c.JSON(http.StatusNotFound, gin.H{"error": "No status checks found"})
	default:
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg(op)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(started)).
			Msg("request")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
