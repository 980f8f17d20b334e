package config

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a *slog.Logger from the logging configuration and sets
// it as the default logger.
//
// Format "json" produces structured JSON output (production); anything else
// produces human-readable text with source info. Level is one of debug,
// info, warn, error (case-insensitive); defaults to info.
func (c *ServerConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(c.LogLevel),
		AddSource: !strings.EqualFold(c.LogFormat, "json"),
	}

	var handler slog.Handler
	if strings.EqualFold(c.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
