package http

import (
	"context"
	"log/slog"

	"github.com/example/library-system/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger scopes the request logger to one handler operation.
// Authenticated requests also carry the caller's role.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	pairs := make([]any, 0, len(attrs)+6)
	pairs = append(pairs, "handler", handlerName)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if principal, ok := PrincipalFromContext(ctx); ok && principal.Role != "" {
		pairs = append(pairs, "role", string(principal.Role))
	}
	return logging.Scoped(ctx, fallback, append(pairs, attrs...)...)
}
