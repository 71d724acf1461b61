/*
Package log provides structured logging for fluxion using zerolog.

The reactor (see pkg/engine) and every component it owns — the graph,
the traverser, match state, the planners — log through a single
process-wide zerolog.Logger, scoped per component with WithComponent.
Logging never blocks the reactor goroutine for longer than a write to
the configured output; it is one of the handful of operations allowed
to suspend the single-threaded reactor loop (spec section on
concurrency).
*/
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured once via Init.
var Logger zerolog.Logger

// Level is a logging verbosity level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration, sourced from pkg/config.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Safe to call once at process
// startup before any component logger is derived from it.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with the owning
// component name ("graph", "traverser", "matchstate", "planner",
// "rpc", "engine").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithJobID returns a child logger tagged with a jobid field.
func WithJobID(jobid uint64) zerolog.Logger {
	return Logger.With().Uint64("jobid", jobid).Logger()
}

// WithVertex returns a child logger tagged with a vertex handle.
func WithVertex(handle int64) zerolog.Logger {
	return Logger.With().Int64("vertex", handle).Logger()
}
