// Package logger builds the process-wide zerolog root logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Init opens the default file logger, topicd.log in the working directory.
func Init() (zerolog.Logger, error) {
	return InitWithOptions("topicd.log", false)
}

// InitWithOptions builds the root logger. With a logFile the output is JSON
// appended to that file; otherwise stdout, optionally through a pretty
// ConsoleWriter. LOG_LEVEL selects the level (trace, debug, info, warn,
// error; default info).
func InitWithOptions(logFile string, pretty bool) (zerolog.Logger, error) {
	level := parseLogLevel(os.Getenv("LOG_LEVEL"))

	var out io.Writer = os.Stdout
	switch {
	case logFile != "":
		//nolint:gosec // G304: the log file path comes from the operator
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("open log file %s: %w", logFile, err)
		}
		out = file
	case pretty:
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	log := zerolog.New(out).Level(level).With().Timestamp().Logger()

	event := log.Info().Str("level", level.String())
	switch {
	case logFile != "":
		event = event.Str("sink", logFile)
	case pretty:
		event = event.Str("sink", "stdout").Str("format", "console")
	default:
		event = event.Str("sink", "stdout")
	}
	event.Msg("Logger ready")

	return log, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
