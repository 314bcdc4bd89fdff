// Package http serves the lexflow REST API.
package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
	"github.com/fyrsmithlabs/lexflow/internal/config"
	"github.com/fyrsmithlabs/lexflow/internal/logging"
	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
	"github.com/fyrsmithlabs/lexflow/internal/validation"
	"github.com/fyrsmithlabs/lexflow/internal/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Orchestrator is the workflow surface the API exposes.
type Orchestrator interface {
	Capabilities() []capability.Descriptor
	Workflows() []workflow.Summary
	Definition(name string) (workflow.Definition, error)
	Execute(ctx context.Context, name string, input map[string]any) (*workflow.Result, error)
	ExecuteParallel(ctx context.Context, tasks []workflow.ParallelTask) (map[string]capability.Result, error)
	History(limit int) []workflow.ExecutionRecord
	Stats() workflow.Stats
}

// Retriever runs multi-query retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) ([]retrieval.Passage, error)
}

// Validator parses assessment text into a report.
type Validator interface {
	Validate(ctx context.Context, content string) validation.Report
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves gatherer on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithMetrics records OpenTelemetry request metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheck adds a named dependency check to the health endpoint.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server provides the HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	orch      Orchestrator
	retriever Retriever
	validator Validator
	config    config.ServerConfig
	logger    *zap.Logger

	gatherer prometheus.Gatherer
	metrics  *Metrics
	checks   map[string]HealthCheck
	version  string
}

// NewServer creates a server. The retriever and validator are optional;
// their endpoints answer 503 when absent.
func NewServer(orch Orchestrator, retriever Retriever, val Validator, cfg config.ServerConfig, logger *zap.Logger, opts ...Option) (*Server, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking")
	}

	s := &Server{
		orch:      orch,
		retriever: retriever,
		validator: val,
		config:    cfg,
		logger:    logger,
		checks:    make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout.Duration()
	e.Server.WriteTimeout = cfg.WriteTimeout.Duration()
	e.Validator = &requestValidator{v: validator.New()}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if s.metrics != nil {
		e.Use(s.metrics.Middleware())
	}
	e.Use(s.requestLogger)

	s.echo = e
	s.registerRoutes()
	return s, nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			status = toHTTPError(err).Code
		}
		logging.For(c.Request().Context(), s.logger).Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	if s.config.AuthToken.IsSet() {
		v1.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Skipper: func(c echo.Context) bool { return strings.HasSuffix(c.Path(), "/health") },
			Validator: func(key string, _ echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(s.config.AuthToken.Value())) == 1, nil
			},
		}))
	}
	if s.config.RateLimit > 0 {
		burst := int(s.config.RateLimit)
		if burst < 1 {
			burst = 1
		}
		store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(s.config.RateLimit),
			Burst: burst,
		})
		v1.Use(middleware.RateLimiter(store))
	}

	v1.GET("/health", s.handleHealth)
	v1.GET("/capabilities", s.handleCapabilities)
	v1.GET("/workflows", s.handleWorkflows)
	v1.GET("/workflows/:name", s.handleDefinition)
	v1.POST("/workflows/:name/execute", s.handleExecute)
	v1.POST("/tasks/parallel", s.handleParallel)
	v1.POST("/retrieve", s.handleRetrieve)
	v1.POST("/validate", s.handleValidate)
	v1.GET("/executions", s.handleExecutions)
	v1.GET("/stats", s.handleStats)
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he := toHTTPError(err)
	if he.Code >= http.StatusInternalServerError {
		logging.For(c.Request().Context(), s.logger).Error("request failed",
			zap.String("path", c.Path()), zap.Error(err))
	}

	msg := he.Message
	if m, ok := msg.(string); ok {
		msg = map[string]string{"error": m}
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(he.Code)
	} else {
		err = c.JSON(he.Code, msg)
	}
	if err != nil {
		s.logger.Warn("writing error response", zap.Error(err))
	}
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
