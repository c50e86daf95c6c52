package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a JSON slog handler on stdout as the default logger.
// The level is taken from LOG_LEVEL (debug, info, warn, error); default info.
func Setup() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
