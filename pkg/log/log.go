package log

import (
	"io"
	"os"
	"time"

	"github.com/cuemby/sentinel/pkg/types"
	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level represents a log severity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger.
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

// WithComponent creates a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithMemberID creates a child logger tagged with a member id.
func WithMemberID(id types.MemberId) zerolog.Logger {
	return Logger.With().Str("member_id", string(id)).Logger()
}

// ServiceLogger formats every message with the "Supervisor <svc-group>:"
// preamble required by the error-handling design, on top of a
// zerolog.Logger tagged with the service_group field.
type ServiceLogger struct {
	zerolog.Logger
	preamble string
}

// WithServiceGroup creates a logger scoped to one service group.
func WithServiceGroup(sg types.ServiceGroup) ServiceLogger {
	return ServiceLogger{
		Logger:   Logger.With().Str("service_group", sg.String()).Logger(),
		preamble: "Supervisor " + sg.String() + ": ",
	}
}

// Info logs an info-level message with the service-group preamble.
func (s ServiceLogger) Info(msg string) {
	s.Logger.Info().Msg(s.preamble + msg)
}

// Warn logs a warn-level message with the service-group preamble.
func (s ServiceLogger) Warn(msg string) {
	s.Logger.Warn().Msg(s.preamble + msg)
}

// Error logs an error-level message with the service-group preamble.
func (s ServiceLogger) Error(err error, msg string) {
	s.Logger.Error().Err(err).Msg(s.preamble + msg)
}

// Debug logs a debug-level message with the service-group preamble.
func (s ServiceLogger) Debug(msg string) {
	s.Logger.Debug().Msg(s.preamble + msg)
}

// Info logs an info-level message on the global logger.
func Info(msg string) { Logger.Info().Msg(msg) }

// Debug logs a debug-level message on the global logger.
func Debug(msg string) { Logger.Debug().Msg(msg) }

// Warn logs a warn-level message on the global logger.
func Warn(msg string) { Logger.Warn().Msg(msg) }

// Error logs an error-level message on the global logger.
func Error(msg string) { Logger.Error().Msg(msg) }

// Errorf logs an error-level message with an attached error.
func Errorf(format string, err error) { Logger.Error().Err(err).Msg(format) }

// Fatal logs a fatal-level message and exits the process.
func Fatal(msg string) { Logger.Fatal().Msg(msg) }
