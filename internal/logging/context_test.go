package logging

import (
	"context"
	"strings"
	"testing"
)

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithCorrelationID(ctx, "corr-123")
	ctx = ContextWithRequestID(ctx, "req-456")
	ctx = ContextWithReviewID(ctx, "review-789")

	if id, ok := CorrelationIDFromContext(ctx); !ok || id != "corr-123" {
		t.Errorf("Expected correlation ID corr-123, got %q", id)
	}
	if id, ok := RequestIDFromContext(ctx); !ok || id != "req-456" {
		t.Errorf("Expected request ID req-456, got %q", id)
	}
	if id, ok := ReviewIDFromContext(ctx); !ok || id != "review-789" {
		t.Errorf("Expected review ID review-789, got %q", id)
	}

	fields := fieldsFromContext(ctx)
	if len(fields) != 3 {
		t.Errorf("Expected 3 context fields, got %v", fields)
	}
}

func TestMissingContextValues(t *testing.T) {
	ctx := context.Background()

	if _, ok := CorrelationIDFromContext(ctx); ok {
		t.Error("Expected no correlation ID in empty context")
	}
	if _, ok := RequestIDFromContext(ctx); ok {
		t.Error("Expected no request ID in empty context")
	}
	if _, ok := ReviewIDFromContext(ctx); ok {
		t.Error("Expected no review ID in empty context")
	}
	if fields := fieldsFromContext(ctx); len(fields) != 0 {
		t.Errorf("Expected no fields, got %v", fields)
	}
}

func TestGenerateIDs(t *testing.T) {
	tests := []struct {
		prefix string
		gen    func() string
	}{
		{"corr_", GenerateCorrelationID},
		{"req_", GenerateRequestID},
	}

	for _, tt := range tests {
		id1, id2 := tt.gen(), tt.gen()
		if !strings.HasPrefix(id1, tt.prefix) {
			t.Errorf("Expected ID to start with %q, got %s", tt.prefix, id1)
		}
		if id1 == id2 {
			t.Error("Expected unique IDs, but got duplicates")
		}
		if parts := strings.Split(id1, "_"); len(parts) != 2 || len(parts[1]) != 32 {
			t.Errorf("Expected '<prefix>_<32 hex>', got %s", id1)
		}
	}
}
