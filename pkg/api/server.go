// Package api serves the HTTP gateway: manual reactions, chat listing,
// auto-react sessions, rule management, reacting control, the /ws event push
// and operational endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinyland-inc/autoreact/pkg/autoreact"
	"github.com/tinyland-inc/autoreact/pkg/dispatcher"
	"github.com/tinyland-inc/autoreact/pkg/events"
	"github.com/tinyland-inc/autoreact/pkg/logger"
	"github.com/tinyland-inc/autoreact/pkg/meter"
	"github.com/tinyland-inc/autoreact/pkg/platform"
	"github.com/tinyland-inc/autoreact/pkg/reactlog"
	"github.com/tinyland-inc/autoreact/pkg/rules"
	"github.com/tinyland-inc/autoreact/pkg/session"
)

type Options struct {
	Session    *session.Controller
	Dispatcher *dispatcher.Dispatcher
	Runner     *autoreact.Runner
	Rules      *rules.Store
	Log        *reactlog.Log
	Hub        *events.Hub
	Meter      *meter.Store
	Version    string

	// BaseContext bounds auto-react sessions started over HTTP. They outlive
	// the request that started them.
	BaseContext context.Context

	// Registerer and Gatherer default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

type Server struct {
	opts     Options
	echo     *echo.Echo
	upgrader websocket.Upgrader
}

func New(opts Options) *Server {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 10,
			WriteBufferSize: 1 << 12,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.DebugCF("api", "HTTP request", map[string]any{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			return nil
		},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "autoreact",
		Registerer: opts.Registerer,
	}))
	e.Use(middleware.CORS())

	e.GET("/health", s.handleHealth)
	e.GET("/ready", s.handleReady)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: opts.Gatherer,
	}))
	e.GET("/ws", s.handleWebsocket)

	api := e.Group("/api")
	api.POST("/react", s.handleReact)
	api.GET("/chats", s.handleChats)
	api.POST("/auto-react", s.handleStartAutoReact)
	api.GET("/auto-react", s.handleListAutoReact)
	api.GET("/auto-react/:id", s.handleGetAutoReact)
	api.DELETE("/auto-react/:id", s.handleStopAutoReact)
	api.GET("/rules", s.handleListRules)
	api.POST("/rules", s.handleAddRule)
	api.GET("/stats", s.handleStats)
	api.POST("/reacting/start", s.handleStartReacting)
	api.POST("/reacting/stop", s.handleStopReacting)
	api.GET("/reactions", s.handleReactions)

	s.echo = e
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown. It returns http.ErrServerClosed after
// a graceful shutdown.
func (s *Server) Start(addr string) error {
	logger.InfoCF("api", "HTTP gateway listening", map[string]any{"addr": addr})
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, platform.ErrNotConnected),
		errors.Is(err, autoreact.ErrInvalidRequest),
		errors.Is(err, rules.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, platform.ErrNotFound),
		errors.Is(err, autoreact.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatcher.ErrAlreadyReacting),
		errors.Is(err, dispatcher.ErrNotReacting),
		errors.Is(err, autoreact.ErrNotRunning):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(he.Code)
		}
	}

	if code >= http.StatusInternalServerError {
		logger.ErrorCF("api", "Request failed", map[string]any{
			"path":   c.Path(),
			"status": code,
			"error":  err.Error(),
		})
	} else {
		logger.DebugCF("api", "Request rejected", map[string]any{
			"path":   c.Path(),
			"status": code,
			"error":  err.Error(),
		})
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorResponse{Error: msg})
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

var startedAt = time.Now()

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Version: s.opts.Version,
		Uptime:  time.Since(startedAt).Truncate(time.Second).String(),
	})
}

// handleReady reports 503 until the platform session is connected.
func (s *Server) handleReady(c echo.Context) error {
	if s.opts.Session == nil || !s.opts.Session.Connected() {
		return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
	}
	return c.JSON(http.StatusOK, healthResponse{Status: "ready"})
}
