package logging

import (
	"log/slog"
	"os"
)

// Init installs the default slog logger with the level named by LOG_LEVEL.
func Init() {
	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: LevelFromEnv(),
		}),
	)
	slog.SetDefault(logger)
}

// LevelFromEnv maps LOG_LEVEL to a slog level. Unset or unknown values
// mean errors only.
func LevelFromEnv() slog.Level {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return slog.LevelError
	}
	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
