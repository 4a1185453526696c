package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"CoinSentinel/internal/model"
	"CoinSentinel/internal/recorder"
	"CoinSentinel/internal/risk"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// StatusProvider exposes the bot's state to HTTP handlers.
type StatusProvider interface {
	Positions() []risk.Position
	Summary() model.PortfolioSummary
	Status() model.BotStatus
	RecentCloses(limit int) ([]recorder.CloseEvent, error)
}

// Config holds the listen address and timeouts.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server wraps an Echo instance serving health, metrics and read-only state.
type Server struct {
	echo *echo.Echo
	cfg  Config
	log  zerolog.Logger
}

// New creates the server. metrics may be nil.
func New(cfg Config, provider StatusProvider, metrics http.Handler, log zerolog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	log = log.With().Str("component", "http").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.Use(recoverMiddleware(log), requestLogging(log))

	h := &handler{provider: provider}
	e.GET("/healthz", h.health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
	g := e.Group("/api")
	g.GET("/status", h.status)
	g.GET("/positions", h.positions)
	g.GET("/summary", h.summary)
	g.GET("/closes", h.closes)

	return &Server{echo: e, cfg: cfg, log: log}
}

// Start listens in the background.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server error")
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.echo }

type handler struct {
	provider StatusProvider
}

func (h *handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.provider.Status())
}

func (h *handler) positions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.provider.Positions())
}

func (h *handler) summary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.provider.Summary())
}

func (h *handler) closes(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
		}
		limit = n
	}
	closes, err := h.provider.RecentCloses(limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if closes == nil {
		closes = []recorder.CloseEvent{}
	}
	return c.JSON(http.StatusOK, closes)
}

func recoverMiddleware(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("handler panic")
					_ = c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				}
			}()
			return next(c)
		}
	}
}

func requestLogging(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			log.Debug().
				Str("method", c.Request().Method).
				Str("uri", c.Request().RequestURI).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("request")
			return err
		}
	}
}
