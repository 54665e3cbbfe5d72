package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dmmcquay/katago-retro/internal/katago"
	"github.com/dmmcquay/katago-retro/internal/logging"
	"github.com/dmmcquay/katago-retro/internal/ratelimit"
	"github.com/dmmcquay/katago-retro/internal/retry"
)

// Recorder receives per-call metrics. *metrics.PrometheusCollector implements it.
type Recorder interface {
	RecordToolCall(tool, status string, durationSecs float64)
	RecordRateLimit(client, tool string, hit bool)
}

// Middleware wraps MCP tool handlers with rate limiting, metrics and logging.
type Middleware struct {
	logger      logging.ContextLogger
	metrics     Recorder
	rateLimiter *ratelimit.Limiter
}

// NewMiddleware creates a new middleware instance. metrics and rateLimiter may be nil.
func NewMiddleware(logger logging.ContextLogger, metrics Recorder, rateLimiter *ratelimit.Limiter) *Middleware {
	return &Middleware{
		logger:      logger,
		metrics:     metrics,
		rateLimiter: rateLimiter,
	}
}

// ToolHandler is the function signature for MCP tool handlers.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// WrapTool wraps a tool handler with middleware functionality.
func (m *Middleware) WrapTool(toolName string, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		clientID := extractClientID(ctx, request)

		m.logger.Info("Tool request received",
			"tool", toolName,
			"client", clientID,
		)

		if err := m.rateLimiter.Allow(clientID, toolName); err != nil {
			m.logger.Warn("Rate limit exceeded",
				"tool", toolName,
				"client", clientID,
				"error", err,
			)
			m.recordRateLimit(clientID, toolName, true)
			m.recordCall(toolName, "rate_limited", start)
			return nil, fmt.Errorf("tool %s: %w", toolName, err)
		}
		m.recordRateLimit(clientID, toolName, false)

		result, err := handler(ctx, request)

		status := "success"
		switch {
		case err != nil:
			status = "error"
			m.logger.Error("Tool request failed",
				"tool", toolName,
				"client", clientID,
				"error", err,
				"duration", time.Since(start),
			)
		case result != nil && result.IsError:
			status = "rejected"
			m.logger.Info("Tool request rejected",
				"tool", toolName,
				"client", clientID,
				"duration", time.Since(start),
			)
		default:
			m.logger.Info("Tool request completed",
				"tool", toolName,
				"client", clientID,
				"duration", time.Since(start),
			)
		}
		m.recordCall(toolName, status, start)

		return result, err
	}
}

// WrapToolWithRetry retries the wrapped handler while the engine is down or
// restarting. Any other error is returned at once.
func (m *Middleware) WrapToolWithRetry(toolName string, handler ToolHandler, maxRetries int) ToolHandler {
	wrappedHandler := m.WrapTool(toolName, handler)

	cfg := retry.Config{
		MaxAttempts:  maxRetries + 1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			m.logger.Debug("Retrying tool request",
				"tool", toolName,
				"attempt", attempt,
				"backoff", delay,
				"error", err,
			)
		},
	}
	mgr := retry.NewManager(cfg)

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var result *mcp.CallToolResult
		err := mgr.Run(ctx, func(ctx context.Context) error {
			var err error
			result, err = wrappedHandler(ctx, request)
			if err != nil && !engineUnavailable(err) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func engineUnavailable(err error) bool {
	return errors.Is(err, katago.ErrNotRunning) || errors.Is(err, katago.ErrEngineStopped)
}

// RateLimitStatus reports the limiter state for getEngineStatus.
func (m *Middleware) RateLimitStatus() ratelimit.Status {
	return m.rateLimiter.Status()
}

func (m *Middleware) recordCall(tool, status string, start time.Time) {
	if m.metrics != nil {
		m.metrics.RecordToolCall(tool, status, time.Since(start).Seconds())
	}
}

func (m *Middleware) recordRateLimit(client, tool string, hit bool) {
	if m.metrics != nil && m.rateLimiter != nil {
		m.metrics.RecordRateLimit(client, tool, hit)
	}
}

type clientIDKey struct{}

// ContextWithClientID tags ctx with the caller's identity for rate limiting.
func ContextWithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, clientID)
}

// extractClientID attempts to extract a client identifier from the context or request.
func extractClientID(ctx context.Context, request mcp.CallToolRequest) string {
	if clientID, ok := ctx.Value(clientIDKey{}).(string); ok && clientID != "" {
		return clientID
	}

	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if clientID, ok := args["clientID"].(string); ok && clientID != "" {
			return clientID
		}
	}

	return "anonymous"
}
