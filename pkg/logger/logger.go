// Package logger holds the process-wide zerolog logger. Informational
// levels go to stdout, error and above to stderr, so build output stays
// pipeable while failures land on the error stream.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = newConsoleLogger(os.Stdout, os.Stderr)

func newConsoleLogger(out, errOut io.Writer) zerolog.Logger {
	writer := zerolog.MultiLevelWriter(
		levelWriter{
			Writer: zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339},
			levels: []zerolog.Level{zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel},
		},
		levelWriter{
			Writer: zerolog.ConsoleWriter{Out: errOut, TimeFormat: time.RFC3339},
			levels: []zerolog.Level{zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel},
		},
	)
	return zerolog.New(writer).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// SetDebug toggles debug-level output for the whole process.
func SetDebug(enabled bool) {
	level := zerolog.InfoLevel
	if enabled {
		level = zerolog.DebugLevel
	}
	logger = logger.Level(level)
}

// With returns a component-scoped logger for packages that want
// structured fields instead of the package-level helpers.
func With(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

func Info(msg string) { logger.Info().Msg(msg) }

func Infof(format string, args ...interface{}) { logger.Info().Msgf(format, args...) }

func Warn(msg string) { logger.Warn().Msg(msg) }

func Warnf(format string, args ...interface{}) { logger.Warn().Msgf(format, args...) }

func Error(msg string) { logger.Error().Msg(msg) }

func Errorf(format string, args ...interface{}) { logger.Error().Msgf(format, args...) }

func Debug(msg string) { logger.Debug().Msg(msg) }

func Debugf(format string, args ...interface{}) { logger.Debug().Msgf(format, args...) }

// levelWriter forwards only the listed levels to its writer.
type levelWriter struct {
	io.Writer
	levels []zerolog.Level
}

func (w levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	for _, l := range w.levels {
		if l == level {
			return w.Write(p)
		}
	}
	return len(p), nil
}
