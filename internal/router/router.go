// Package router assembles the echo instances of the LearnTrack servers.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/handler"
	"github.com/learntrack/learntrack/internal/metrics"
	"github.com/learntrack/learntrack/internal/middleware"
)

// New returns an echo instance with the shared plumbing: validation,
// templates, JSON error translation, request logging and panic recovery.
func New(log zerolog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Renderer = handler.NewTemplates()
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log, m.RequestDuration))
	return e
}

// registerOps mounts the health, readiness and metrics endpoints every
// server exposes.
func registerOps(e *echo.Echo, m *metrics.Metrics, ready map[string]handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(ready))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}
