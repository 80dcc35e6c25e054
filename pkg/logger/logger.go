// Package logger holds the process-wide zerolog logger used by the tools.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

var (
	globalLogger zerolog.Logger
	initialized  bool
)

// InitLogger sets up a console logger on stderr at the given level:
// trace, debug, info, warn, error or disabled.
func InitLogger(level string) error {
	return InitLoggerTo(os.Stderr, level)
}

// InitLoggerTo is InitLogger with an explicit destination.
func InitLoggerTo(w io.Writer, level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	globalLogger = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(lvl).
		With().Timestamp().Logger()
	initialized = true
	return nil
}

func parseLevel(level string) (zerolog.Level, error) {
	switch level {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	}
	return zerolog.NoLevel, fmt.Errorf("invalid log level: %s", level)
}

// GetLogger returns the process logger, or a disabled one before
// InitLogger has run.
func GetLogger() zerolog.Logger {
	if !initialized {
		return zerolog.Nop()
	}
	return globalLogger
}
