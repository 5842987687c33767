// Package logging initializes the process-wide slog logger: JSON vs
// text handler from MESHSTORE_JSON_LOG, level from MESHSTORE_LOG_LEVEL.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures and installs the global slog logger for component.
func Init(component string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("MESHSTORE_JSON_LOG"))
	json := mode == "1" || mode == "true" || mode == "json"

	opts := &slog.HandlerOptions{Level: levelFromEnv()}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("component", component)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", json, "level", opts.Level)
	return logger
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("MESHSTORE_LOG_LEVEL")) {
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
