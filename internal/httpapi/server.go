package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sentra/internal/embeddings"
	"github.com/fyrsmithlabs/sentra/internal/generation"
	"github.com/fyrsmithlabs/sentra/internal/ingest"
	"github.com/fyrsmithlabs/sentra/internal/logging"
	"github.com/fyrsmithlabs/sentra/internal/retrieval"
	"github.com/fyrsmithlabs/sentra/internal/smartaccess"
	"github.com/fyrsmithlabs/sentra/internal/vectorstore"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the sentra HTTP endpoints.
//
// The retrieval path fails loud on store outages (503); the Smart Access
// path answers 200 with neutral results, which the service layer already
// guarantees.
type Server struct {
	echo        *echo.Echo
	logger      *zap.Logger
	config      *Config
	identity    IdentityResolver
	retrieval   *retrieval.Service
	ingest      *ingest.Service
	smartaccess *smartaccess.Service
}

// NewServer creates a new HTTP server.
func NewServer(cfg *Config, retrievalSvc *retrieval.Service, ingestSvc *ingest.Service, smartSvc *smartaccess.Service, resolver IdentityResolver, logger *zap.Logger) (*Server, error) {
	if retrievalSvc == nil || ingestSvc == nil || smartSvc == nil {
		return nil, fmt.Errorf("all services are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if resolver == nil {
		resolver = HeaderIdentityResolver{}
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogging(logger))
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s := &Server{
		echo:        e,
		logger:      logger,
		config:      cfg,
		identity:    resolver,
		retrieval:   retrievalSvc,
		ingest:      ingestSvc,
		smartaccess: smartSvc,
	}
	s.registerRoutes()
	return s, nil
}

// requestLogging logs each request and threads the request ID into the
// request context for downstream log correlation.
func requestLogging(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			if requestID != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))
			}

			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleUploadDocument)
	v1.POST("/query", s.handleQuery)

	sa := v1.Group("/smart-access")
	sa.POST("/collect", s.handleCollect)
	sa.GET("/check", s.handleCheck)
	sa.GET("/settings", s.handleGetSettings)
	sa.PUT("/settings", s.handlePutSettings)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleUploadDocument(c echo.Context) error {
	identity, err := s.identity.Resolve(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	}

	var req UploadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.Filename == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "filename is required"})
	}

	ids, err := s.ingest.Upload(c.Request().Context(), identity, ingest.Document{
		Filename:    req.Filename,
		Text:        req.Text,
		Audience:    req.Audience,
		CustomRoles: req.CustomRoles,
	})
	if err != nil {
		return s.mapError(c, err)
	}

	return c.JSON(http.StatusCreated, UploadResponse{
		Filename: req.Filename,
		Chunks:   len(ids),
		ChunkIDs: ids,
	})
}

func (s *Server) handleQuery(c echo.Context) error {
	identity, err := s.identity.Resolve(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	}

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	answer, err := s.retrieval.Ask(c.Request().Context(), retrieval.QueryRequest{
		Query:    req.Query,
		TopK:     req.TopK,
		Identity: identity,
	})
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, answer)
}

func (s *Server) handleCollect(c echo.Context) error {
	var event smartaccess.Event
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	result, err := s.smartaccess.Collect(c.Request().Context(), event)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleCheck(c echo.Context) error {
	identityID := c.QueryParam("employee_id")

	result, err := s.smartaccess.Check(c.Request().Context(), identityID)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetSettings(c echo.Context) error {
	identity, err := s.identity.Resolve(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	}
	if !isAdmin(identity) {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "settings require manager or admin role"})
	}

	return c.JSON(http.StatusOK, s.smartaccess.Settings().Get())
}

func (s *Server) handlePutSettings(c echo.Context) error {
	identity, err := s.identity.Resolve(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	}
	if !isAdmin(identity) {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "settings require manager or admin role"})
	}

	var settings smartaccess.Settings
	if err := c.Bind(&settings); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	if err := s.smartaccess.Settings().Update(settings); err != nil {
		if errors.Is(err, smartaccess.ErrInvalidSettings) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
		return s.mapError(c, err)
	}

	s.logger.Info("smart access settings updated",
		zap.String("updated_by", identity.UserID))
	return c.JSON(http.StatusOK, s.smartaccess.Settings().Get())
}

// mapError translates domain errors to HTTP status codes.
func (s *Server) mapError(c echo.Context, err error) error {
	var verr *smartaccess.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid event", Fields: verr.Fields})
	case errors.Is(err, retrieval.ErrEmptyQuery),
		errors.Is(err, ingest.ErrInvalidAudience),
		errors.Is(err, ingest.ErrEmptyDocument):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, vectorstore.ErrUnavailable):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "vector store unavailable"})
	case errors.Is(err, embeddings.ErrEmbeddingFailed),
		errors.Is(err, generation.ErrGenerationFailed):
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
