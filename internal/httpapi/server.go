// Package httpapi provides the read-only status HTTP API and the
// confirmation endpoint for analyzed resources.
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

	"github.com/fyrsmithlabs/weaver/internal/config"
	"github.com/fyrsmithlabs/weaver/internal/logging"
	"github.com/fyrsmithlabs/weaver/internal/session"
	"github.com/fyrsmithlabs/weaver/internal/toolproto"
)

// Server exposes session state over HTTP. All orchestration state is owned
// by the session; handlers only read snapshots and forward confirmations.
type Server struct {
	echo     *echo.Echo
	sessions *session.Session
	registry *toolproto.Registry
	logger   *logging.Logger
	cfg      config.ServerConfig
}

// NewServer creates the status server.
func NewServer(cfg config.ServerConfig, sessions *session.Session, registry *toolproto.Registry, logger *logging.Logger) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		sessions: sessions,
		registry: registry,
		logger:   logger,
		cfg:      cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/resources", s.handleListResources)
	v1.GET("/resources/:id", s.handleGetResource)
	v1.POST("/resources/:id/confirm", s.handleConfirm)
	v1.GET("/providers", s.handleListProviders)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListResources(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sessions.Snapshots())
}

func (s *Server) handleGetResource(c echo.Context) error {
	snap, err := s.sessions.GetState(c.Param("id"))
	if err != nil {
		var unknown *session.ErrUnknownResource
		if errors.As(err, &unknown) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// ConfirmRequest is the request body for POST /api/v1/resources/:id/confirm.
type ConfirmRequest struct {
	Decision session.Decision `json:"decision"`
}

func (s *Server) handleConfirm(c echo.Context) error {
	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !req.Decision.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "decision must be accept or reject")
	}

	if err := s.sessions.Confirm(c.Param("id"), req.Decision); err != nil {
		var unknown *session.ErrUnknownResource
		if errors.As(err, &unknown) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"resource_id": c.Param("id"),
		"decision":    string(req.Decision),
	})
}

// ProviderStatus is one entry in the GET /api/v1/providers response.
type ProviderStatus struct {
	Name       string   `json:"name"`
	Health     string   `json:"health"`
	Operations []string `json:"operations"`
}

func (s *Server) handleListProviders(c echo.Context) error {
	var out []ProviderStatus
	if s.registry != nil {
		for _, name := range s.registry.Names() {
			p, ok := s.registry.Get(name)
			if !ok {
				continue
			}
			out = append(out, ProviderStatus{
				Name:       p.Name,
				Health:     string(p.Health()),
				Operations: p.OperationNames(),
			})
		}
	}
	return c.JSON(http.StatusOK, out)
}

// Echo exposes the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting status server", zap.String("addr", s.cfg.Addr))
	return s.echo.Start(s.cfg.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down status server")
	return s.echo.Shutdown(ctx)
}
