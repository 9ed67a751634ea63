// Package client is the client server's HTTP access to the authorization
// and resource servers. Calls go through a circuit breaker so a down
// dependency fails fast instead of tying up request goroutines.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

const maxBody = 1 << 20

// APIError is a non-2xx response from a downstream server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("downstream returned %d: %s", e.Status, e.Message)
}

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("downstream unavailable")

// transport performs HTTP calls through a breaker. Client errors (4xx)
// count as successes; only transport failures and 5xx trip it.
type transport struct {
	http *http.Client
	cb   *gobreaker.CircuitBreaker[[]byte]
}

func newTransport(name string, hc *http.Client, log zerolog.Logger) *transport {
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return &transport{http: hc, cb: cb}
}

func (t *transport) do(req *http.Request) ([]byte, error) {
	body, err := t.cb.Execute(func() ([]byte, error) {
		resp, err := t.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(b)}
		}
		return b, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return body, err
}

// doJSON sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (t *transport) doJSON(ctx context.Context, method, url, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	b, err := t.do(req)
	if err != nil || out == nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, url, err)
	}
	return nil
}

// errorMessage pulls "error" (and "error_description") out of a JSON
// error body, falling back to the raw text.
func errorMessage(b []byte) string {
	var e struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		if e.Description != "" {
			return e.Error + ": " + e.Description
		}
		return e.Error
	}
	return string(bytes.TrimSpace(b))
}
