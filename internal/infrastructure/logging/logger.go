package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/live-logic-core/internal/infrastructure/config"
)

// Logger wraps slog.Logger with the daemon's defaults: service and
// version fields on every line, level filtering from config. Safe for
// concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging config section. Format is json
// or text, output stdout or stderr; unrecognised values fall back to
// json on stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	out := destination(cfg.Output)
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "livelogic"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// destination maps the configured output name to a writer. Anything
// other than stderr means stdout.
func destination(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps debug/info/warn/error to slog levels, defaulting to
// info for anything unrecognised.
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

// With returns a derived Logger carrying extra default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithComponent returns a new Logger tagged with a component name.
// Each subsystem (osc, param, pipeline, recovery, ...) gets its own
// tagged logger at startup so lines can be filtered per subsystem.
//
//	oscLogger := logger.WithComponent("osc")
//	oscLogger.Info("listener started") // includes component=osc
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used before the config file is loaded. JSON
// to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
