// Package internal holds small infrastructure helpers shared by the
// binaries.
package internal

import (
	"log/slog"
	"os"
	"strings"
)

// GetLoggerFromString builds the process logger from a level name
// (debug, info, warn, error). Unknown names fall back to info.
func GetLoggerFromString(level string) *slog.Logger {
	return GetLoggerFromLevel(parseLevel(level))
}

func GetLoggerFromLevel(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
