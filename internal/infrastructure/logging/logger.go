package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/embercore/ember-core/internal/infrastructure/config"
)

// Logger wraps slog.Logger with the service's default fields and
// level filtering already applied. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from config. Format is "json" or "text", output
// is "stdout" or "stderr", and every record carries service and
// version attributes so log aggregation can tell instances apart.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "embercore"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel maps a level string to slog.Level, defaulting to info
// for anything unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child Logger carrying extra default attributes.
// Subsystems use it to tag their records:
//
//	ctrlLog := logger.With("component", "controller")
//	ctrlLog.Info("tick started") // includes component=controller
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default returns a JSON stdout logger at info level for use during
// early startup, before the config file has been loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
