// Package logging configures the controller's structured logger from the
// CONTROLLER_LOG_LEVEL / CONTROLLER_STRUCTURED_LOGGING options (spec.md §6).
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger honoring the requested level and format.
// When structured is false it writes zerolog's human-readable console
// format instead of JSON, for interactive/local runs.
func New(level string, structured bool, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	if !structured {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Event logs a structured controller event, the same call shape the
// teacher's orchestrator used for its log.Printf-based logEvent helper,
// now backed by a real structured logger instead of string formatting.
func Event(log zerolog.Logger, event string, fields map[string]any) {
	e := log.Info().Str("event", event)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(event)
}
