package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init installs the global console logger on stderr and returns it.
func Init(verbose bool) zerolog.Logger {
	return InitWriter(os.Stderr, verbose, true)
}

// InitWriter installs the global logger on w. With console false the output
// is plain JSON lines, which is what log collectors want.
func InitWriter(w io.Writer, verbose, console bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := w
	if console {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
		}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// WithRun tags every event of one reel generation.
func WithRun(logger zerolog.Logger, subject, runID string) zerolog.Logger {
	return logger.With().
		Str("subject", subject).
		Str("run_id", runID).
		Logger()
}

// WithSource tags events about one input video.
func WithSource(logger zerolog.Logger, index int, locator string) zerolog.Logger {
	return logger.With().
		Int("source", index).
		Str("locator", locator).
		Logger()
}
