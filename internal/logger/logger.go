package logger

import (
	"io"
	"log/slog"
	"strings"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/config"
)

// Setup configures structured logging and installs the result as the
// default logger. Interactive front ends pass their own writer so log
// output does not fight the terminal UI.
func Setup(cfg config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Env == "development" {
		level = slog.LevelDebug
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
