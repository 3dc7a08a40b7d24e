package gateway

import (
	"context"

	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id of one logical gateway call.
const RequestIDHeader = "X-Request-ID"

// RequestIDKeyType is the type used for request ID context key.
type RequestIDKeyType string

// RequestIDKey is the key used to store request ID in context.
const RequestIDKey RequestIDKeyType = "request_id"

// WithRequestID returns a context whose gateway calls use id as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestIDFromContext extracts request ID from standard context.
func GetRequestIDFromContext(ctx context.Context) string {
	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

func requestIDFor(ctx context.Context) string {
	if id := GetRequestIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.New().String()
}
