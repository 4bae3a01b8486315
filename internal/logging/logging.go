// Package logging builds the zerolog loggers used across the tool.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Base builds a logger writing to stderr.
// format: json|console; level: trace|debug|info|warn|error
func Base(app, level, format string) zerolog.Logger {
	return New(os.Stderr, app, level, format)
}

// New builds a logger writing to w.
func New(w io.Writer, app, level, format string) zerolog.Logger {
	return zerolog.New(writerForFormat(w, format)).
		Level(parseLevel(level)).
		With().Timestamp().Str("app", app).Logger()
}

func parseLevel(s string) zerolog.Level {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s))); err == nil && s != "" {
		return lvl
	}
	return zerolog.InfoLevel
}

func writerForFormat(w io.Writer, format string) io.Writer {
	if strings.ToLower(strings.TrimSpace(format)) == "console" {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return w
}
