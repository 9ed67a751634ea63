package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/config"
	"github.com/learntrack/learntrack/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func newLogger(c config.Common, service string) zerolog.Logger {
	return logging.ForService(logging.New(c.LogLevel, c.LogFormat, os.Stdout), service).
		With().Str("env", c.Env).Logger()
}

// serve runs e on addr until ctx is cancelled, then drains in-flight
// requests.
func serve(ctx context.Context, e *echo.Echo, addr string, log zerolog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
