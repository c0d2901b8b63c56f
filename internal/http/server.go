// Package http exposes the interview API over REST.
package http

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

	"github.com/fyrsmithlabs/interviewd/internal/interview"
	"github.com/fyrsmithlabs/interviewd/internal/logging"
)

// Server serves the interview API.
type Server struct {
	echo    *echo.Echo
	service *interview.Service
	logger  *logging.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the API server over a service facade.
func NewServer(service *interview.Service, logger *logging.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9180,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Request ID flows into every log line below the handler.
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.ContextWithRequestID(c.Request().Context(), reqID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger.Named("http"),
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/health/check", s.handleHealthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.POST("/sessions/:id/messages", s.handleSubmitMessage)
	v1.GET("/sessions/:id/messages", s.handleListMessages)
	v1.POST("/sessions/:id/end", s.handleEndSession)
	v1.GET("/personas", s.handleListPersonas)
}

// CreateSessionRequest is the request body for POST /api/v1/sessions.
type CreateSessionRequest struct {
	Position   string `json:"position"`
	Difficulty string `json:"difficulty"`
}

// SubmitMessageRequest is the request body for POST /api/v1/sessions/:id/messages.
type SubmitMessageRequest struct {
	Content string `json:"content"`
}

// SubmitMessageResponse carries the messages one turn appended.
type SubmitMessageResponse struct {
	Messages []interview.Message `json:"messages"`
}

// MessagesResponse is the response body for GET /api/v1/sessions/:id/messages.
type MessagesResponse struct {
	Messages []interview.Message `json:"messages"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string           `json:"status"`
	Providers []ProviderHealth `json:"providers"`
}

// ProviderHealth is one backend's availability in the health report.
type ProviderHealth struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	Available bool   `json:"available"`
}

func (s *Server) handleHealth(c echo.Context) error {
	snapshot := s.service.ProviderHealth()
	out := HealthResponse{Status: "ok", Providers: make([]ProviderHealth, 0, len(snapshot))}
	anyUp := false
	for _, h := range snapshot {
		if h.Available {
			anyUp = true
		}
		out.Providers = append(out.Providers, ProviderHealth{
			Name:      h.Name,
			Priority:  h.Priority,
			Available: h.Available,
		})
	}
	if !anyUp && len(snapshot) > 0 {
		out.Status = "degraded"
	}
	return c.JSON(http.StatusOK, out)
}

// handleHealthCheck forces a live probe of every provider instead of
// reading the cached table. Probing is the recovery path for a backend
// the gateway marked unavailable, so operators get an on-demand trigger
// alongside the periodic loop.
func (s *Server) handleHealthCheck(c echo.Context) error {
	checked := s.service.CheckProviders(c.Request().Context())
	out := HealthResponse{Status: "ok", Providers: make([]ProviderHealth, 0, len(checked))}
	anyUp := false
	for _, h := range checked {
		if h.Available {
			anyUp = true
		}
		out.Providers = append(out.Providers, ProviderHealth{
			Name:      h.Name,
			Priority:  h.Priority,
			Available: h.Available,
		})
	}
	if !anyUp && len(checked) > 0 {
		out.Status = "degraded"
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	sess, err := s.service.CreateSession(c.Request().Context(), req.Position, req.Difficulty)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.service.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleSubmitMessage(c echo.Context) error {
	var req SubmitMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	msgs, err := s.service.SubmitUserMessage(c.Request().Context(), c.Param("id"), req.Content)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, SubmitMessageResponse{Messages: msgs})
}

func (s *Server) handleListMessages(c echo.Context) error {
	msgs, err := s.service.ListMessages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, MessagesResponse{Messages: msgs})
}

func (s *Server) handleEndSession(c echo.Context) error {
	sess, err := s.service.EndSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleListPersonas(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.ListPersonaKinds())
}

// mapError converts domain errors to HTTP status codes. AI failures map
// to 502 so callers can tell "retry later" apart from their own mistakes.
func (s *Server) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, interview.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, interview.ErrSessionNotActive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, interview.ErrEmptyPosition),
		errors.Is(err, interview.ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, interview.ErrAIService):
		s.logger.Error(c.Request().Context(), "ai service failure", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "interviewer is unavailable, try again")
	case errors.Is(err, interview.ErrPersistence):
		s.logger.Error(c.Request().Context(), "persistence failure", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "could not persist the session")
	default:
		// Parse errors from CreateSession carry their own message.
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
