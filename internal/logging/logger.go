// Package logging builds the zerolog logger shared by every service.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing JSON to w, or a human readable console
// stream when format is "console". Unknown levels fall back to info.
func New(level, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// ForService tags every entry with the emitting service name.
func ForService(l zerolog.Logger, service string) zerolog.Logger {
	return l.With().Str("service", service).Logger()
}
