package logging

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
	reviewIDKey      contextKey = "review_id"
)

// ContextWithCorrelationID adds a correlation ID to the context.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext retrieves the correlation ID from the context.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey).(string)
	return id, ok
}

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from the context.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// ContextWithReviewID tags the context with the review session it serves.
func ContextWithReviewID(ctx context.Context, reviewID string) context.Context {
	return context.WithValue(ctx, reviewIDKey, reviewID)
}

// ReviewIDFromContext retrieves the review session ID from the context.
func ReviewIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(reviewIDKey).(string)
	return id, ok
}

// GenerateCorrelationID generates a new unique correlation ID.
func GenerateCorrelationID() string {
	return generateID("corr")
}

// GenerateRequestID generates a new unique request ID.
func GenerateRequestID() string {
	return generateID("req")
}

func generateID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// fieldsFromContext collects the IDs stored in ctx as log fields.
func fieldsFromContext(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{}, 3)
	if id, ok := CorrelationIDFromContext(ctx); ok {
		fields[string(correlationIDKey)] = id
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		fields[string(requestIDKey)] = id
	}
	if id, ok := ReviewIDFromContext(ctx); ok {
		fields[string(reviewIDKey)] = id
	}
	return fields
}
