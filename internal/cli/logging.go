package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevelEnv overrides the log level chosen by --verbose.
const LogLevelEnv = "ORBIT_LOG_LEVEL"

// newLogger returns a text logger on w. The level is Warn, Debug with
// verbose, and whatever ORBIT_LOG_LEVEL names when it is set.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	if verbose {
		level.Set(slog.LevelDebug)
	}

	switch strings.ToUpper(os.Getenv(LogLevelEnv)) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO":
		level.Set(slog.LevelInfo)
	case "WARN":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
