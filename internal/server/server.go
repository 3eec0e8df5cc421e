// Package server exposes the analyzers over HTTP.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"contextanalyzer/internal/classifier"
	"contextanalyzer/internal/embedding"
	"contextanalyzer/internal/hybrid"
	"contextanalyzer/internal/vectorsearch"
)

const defaultStatsDays = 30

// Deps are the components behind the routes. Only Hybrid is required; a
// route whose component is missing answers 503.
type Deps struct {
	Hybrid     *hybrid.Analyzer
	Classifier *classifier.Classifier
	Embeddings *embedding.Service
	Search     *vectorsearch.Service
	DB         *sql.DB
	Logger     *zap.Logger
}

type Config struct {
	Host string
	Port int
}

type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config Config
}

func NewServer(deps Deps, cfg Config) (*Server, error) {
	if deps.Hybrid == nil {
		return nil, fmt.Errorf("hybrid analyzer cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	logger := deps.Logger
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{echo: e, deps: deps, logger: logger, config: cfg}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/stats", s.handleStats)

	s.echo.POST("/analyze", s.handleAnalyze)
	s.echo.POST("/classify", s.handleClassify)
	s.echo.POST("/embed", s.handleEmbed)
	s.echo.POST("/search", s.handleSearch)
	s.echo.POST("/index", s.handleIndex)
	s.echo.POST("/corrections", s.handleCorrection)

	s.echo.GET("/collections", s.handleCollections)
	s.echo.DELETE("/collections/:name", s.handleDeleteCollection)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// httpError maps component errors onto status codes: bad input is 400, an
// unreachable model or embedding backend is 503 and anything else is 500.
func (s *Server) httpError(op string, err error) *echo.HTTPError {
	switch {
	case classifier.KindOf(err) == classifier.KindValidation,
		errors.Is(err, embedding.ErrEmptyText),
		errors.Is(err, embedding.ErrDimensionMismatch),
		errors.Is(err, vectorsearch.ErrEmptyQuery),
		errors.Is(err, vectorsearch.ErrEmptyCollection):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, vectorsearch.ErrCollectionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case classifier.KindOf(err) != "",
		errors.Is(err, embedding.ErrEmbeddingFailed),
		errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn(op+" upstream failure", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func unavailable(what string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusServiceUnavailable, what+" is not configured")
}

func required(fields map[string]string) *echo.HTTPError {
	var missing []string
	for _, name := range []string{"title", "description", "text", "query", "collection_name", "original_text", "corrected_category"} {
		if v, ok := fields[name]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return echo.NewHTTPError(http.StatusBadRequest, strings.Join(missing, ", ")+" required")
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func queryInt(c echo.Context, name string, def int) int {
	if n, err := strconv.Atoi(c.QueryParam(name)); err == nil && n > 0 {
		return n
	}
	return def
}

func (s *Server) statsSince(c echo.Context) time.Time {
	days := queryInt(c, "days", defaultStatsDays)
	return time.Now().AddDate(0, 0, -days)
}
