package logger

import (
	"context"
	"log/slog"
	"os"
)

type contextKey struct{}

// Setup installs the process-wide slog handler with the given level and
// output format ("json" or text).
func Setup(level string, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithTxID stores a transaction identifier in ctx so log lines emitted during
// commit can be correlated.
func WithTxID(ctx context.Context, txID string) context.Context {
	return context.WithValue(ctx, contextKey{}, txID)
}

// FromContext returns the default logger, annotated with the transaction id
// stored in ctx if any.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if txID, ok := ctx.Value(contextKey{}).(string); ok {
		logger = logger.With("tx_id", txID)
	}
	return logger
}

// WithComponent returns the default logger annotated with a component name.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
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
