package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Pinger is a dependency checked by Ready, such as *sql.DB or a Redis
// client adapter.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health reports that the process is up.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready pings every dependency and reports 503 when one fails.
func Ready(deps map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		status, checks := http.StatusOK, make(map[string]string, len(deps))
		for name, d := range deps {
			if err := d.PingContext(ctx); err != nil {
				status, checks[name] = http.StatusServiceUnavailable, err.Error()
				continue
			}
			checks[name] = "ok"
		}
		return c.JSON(status, checks)
	}
}

// RedisPinger adapts a Redis client to Pinger.
type RedisPinger struct{ Client *redis.Client }

func (r RedisPinger) PingContext(ctx context.Context) error { return r.Client.Ping(ctx).Err() }
