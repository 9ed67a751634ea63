package middleware

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// RequestLogger assigns a request id, logs one line per request and
// observes latency. duration may be nil.
func RequestLogger(log zerolog.Logger, duration *prometheus.HistogramVec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			reqLog := log.With().Str("request_id", id).Logger()
			c.SetRequest(req.WithContext(reqLog.WithContext(req.Context())))

			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final.
				c.Error(err)
			}
			latency := time.Since(start)
			status := c.Response().Status

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			if duration != nil {
				duration.WithLabelValues(req.Method, route, strconv.Itoa(status)).Observe(latency.Seconds())
			}

			ev := reqLog.Info()
			if status >= 500 {
				ev = reqLog.Error().Err(err)
			}
			ev.Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", latency).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return nil
		}
	}
}
