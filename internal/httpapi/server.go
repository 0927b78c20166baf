// Package httpapi serves the vocabulary service over HTTP.
//
// Routes:
//
//	GET    /health                   liveness and store ping
//	GET    /metrics                  Prometheus exposition
//	POST   /v1/submissions           queue submissions for extraction
//	GET    /v1/vocabulary            learned terms (category, min_confidence, limit)
//	GET    /v1/enrich/:type          prompt enrichment block
//	POST   /v1/feedback              record a feedback event
//	POST   /v1/snapshots             trigger an extraction run
//	GET    /v1/snapshots             recent snapshots
//	POST   /v1/terms/:term/approve   approve a term
//	DELETE /v1/terms/:term           reject a term
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hyperengineering/vocab"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = "4M"

// Server is the HTTP front end of a vocabulary service.
type Server struct {
	svc             *vocab.Service
	echo            *echo.Echo
	logger          *zap.Logger
	shutdownTimeout time.Duration
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a server. gatherer backs /metrics; nil uses the default
// Prometheus registry.
func NewServer(svc *vocab.Service, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := newServer(svc, logger)
	s.registerRoutes(orDefault(gatherer))
	return s
}

// NewMetricsServer creates a server exposing only /metrics, for running
// metrics on a separate listener.
func NewMetricsServer(gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := newServer(nil, logger)
	s.echo.GET("/metrics", metricsHandler(orDefault(gatherer)))
	return s
}

func newServer(svc *vocab.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodyBytes))

	return &Server{
		svc:             svc,
		echo:            e,
		logger:          logger,
		shutdownTimeout: 10 * time.Second,
	}
}

func orDefault(gatherer prometheus.Gatherer) prometheus.Gatherer {
	if gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return gatherer
}

func metricsHandler(gatherer prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", metricsHandler(gatherer))

	v1 := s.echo.Group("/v1")
	v1.POST("/submissions", s.handleIngest)
	v1.GET("/vocabulary", s.handleVocabulary)
	v1.GET("/enrich/:type", s.handleEnrich)
	v1.POST("/feedback", s.handleFeedback)
	v1.POST("/snapshots", s.handleSnapshot)
	v1.GET("/snapshots", s.handleSnapshots)
	v1.POST("/terms/:term/approve", s.handleApprove)
	v1.DELETE("/terms/:term", s.handleReject)
}

// Handler returns the router for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and blocks until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server start: %w", err)
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.svc.Store().Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

type ingestRequest struct {
	Submissions []vocab.Submission `json:"submissions"`
}

type ingestResponse struct {
	Received int `json:"received"`
	Queued   int `json:"queued"`
}

func (s *Server) handleIngest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body: %v", err)
	}
	if len(req.Submissions) == 0 {
		return badRequest(c, "submissions required")
	}
	for i, sub := range req.Submissions {
		if sub.ID == "" {
			return badRequest(c, "submission %d has no id", i)
		}
	}

	n, err := s.svc.Ingest(c.Request().Context(), req.Submissions)
	if err != nil {
		return s.internalError(c, "ingest", err)
	}
	return c.JSON(http.StatusAccepted, ingestResponse{Received: len(req.Submissions), Queued: n})
}

func (s *Server) handleVocabulary(c echo.Context) error {
	var q vocab.VocabularyQuery
	if cat := c.QueryParam("category"); cat != "" {
		q.Category = vocab.Category(cat)
		if !q.Category.IsValid() {
			return badRequest(c, "invalid category %q", cat)
		}
	}
	if v := c.QueryParam("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return badRequest(c, "min_confidence must be between 0 and 1")
		}
		q.MinConfidence = &f
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		q.Limit = n
	}

	entries, err := s.svc.GetVocabulary(c.Request().Context(), q)
	if err != nil {
		return s.internalError(c, "vocabulary", err)
	}
	return c.JSON(http.StatusOK, entries)
}

type enrichResponse struct {
	ContextType string `json:"context_type"`
	Block       string `json:"block"`
}

func (s *Server) handleEnrich(c echo.Context) error {
	contextType := c.Param("type")
	block := s.svc.EnrichedContext(c.Request().Context(), contextType)
	return c.JSON(http.StatusOK, enrichResponse{ContextType: contextType, Block: block})
}

type feedbackResponse struct {
	Recorded bool `json:"recorded"`
}

// handleFeedback always answers 202: feedback failures are logged by the
// service and never surface to the submitter.
func (s *Server) handleFeedback(c echo.Context) error {
	var event vocab.FeedbackEvent
	if err := c.Bind(&event); err != nil {
		return badRequest(c, "invalid body: %v", err)
	}
	ok := s.svc.RecordFeedback(c.Request().Context(), event)
	return c.JSON(http.StatusAccepted, feedbackResponse{Recorded: ok})
}

func (s *Server) handleSnapshot(c echo.Context) error {
	snap, err := s.svc.Snapshot(c.Request().Context())
	if errors.Is(err, vocab.ErrRunInProgress) {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		return s.internalError(c, "snapshot", err)
	}
	return c.JSON(http.StatusCreated, snap)
}

func (s *Server) handleSnapshots(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		limit = n
	}
	snaps, err := s.svc.Snapshots(c.Request().Context(), limit)
	if err != nil {
		return s.internalError(c, "snapshots", err)
	}
	return c.JSON(http.StatusOK, snaps)
}

type curationRequest struct {
	ActorID string `json:"actor_id"`
}

func (s *Server) handleApprove(c echo.Context) error {
	var req curationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body: %v", err)
	}
	if req.ActorID == "" {
		return badRequest(c, "actor_id required")
	}

	entry, err := s.svc.Approve(c.Request().Context(), c.Param("term"), req.ActorID)
	if err != nil {
		return s.curationError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) handleReject(c echo.Context) error {
	actor := c.QueryParam("actor_id")
	if actor == "" {
		return badRequest(c, "actor_id required")
	}
	if err := s.svc.Reject(c.Request().Context(), c.Param("term"), actor); err != nil {
		return s.curationError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) curationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, vocab.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, vocab.ErrEmptyTerm), errors.Is(err, vocab.ErrTermTooLong):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		return s.internalError(c, "curation", err)
	}
}

func badRequest(c echo.Context, format string, args ...any) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf(format, args...)})
}

func (s *Server) internalError(c echo.Context, op string, err error) error {
	s.logger.Error("request failed",
		zap.String("op", op),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Error(err),
	)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
