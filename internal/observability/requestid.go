package observability

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// NewRequestID возвращает уникальный идентификатор запроса.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID сохраняет идентификатор запроса в контексте.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// RequestIDFromContext извлекает идентификатор запроса из контекста.
func RequestIDFromContext(ctx context.Context) string {
	if value, ok := ctx.Value(contextKey{}).(string); ok {
		return value
	}
	return ""
}
