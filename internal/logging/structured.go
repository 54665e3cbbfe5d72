package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"
)

// StructuredLogger writes one JSON object per line.
type StructuredLogger struct {
	level      Level
	service    string
	version    string
	mu         sync.RWMutex
	out        *sync.Mutex
	encoder    *json.Encoder
	fields     map[string]interface{}
	timeFormat string
}

// LogEntry is a single structured log line.
type LogEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         string                 `json:"level"`
	Service       string                 `json:"service"`
	Version       string                 `json:"version,omitempty"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
	ReviewID      string                 `json:"review_id,omitempty"`
	Caller        string                 `json:"caller,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// NewStructuredLogger creates a structured logger writing to stderr.
func NewStructuredLogger(service, version, level string) *StructuredLogger {
	return NewStructuredLoggerWithWriter(os.Stderr, service, version, level)
}

// NewStructuredLoggerWithWriter creates a structured logger writing to w.
func NewStructuredLoggerWithWriter(w io.Writer, service, version, level string) *StructuredLogger {
	return &StructuredLogger{
		level:      ParseLevel(level),
		service:    service,
		version:    version,
		out:        &sync.Mutex{},
		encoder:    json.NewEncoder(w),
		fields:     make(map[string]interface{}),
		timeFormat: time.RFC3339Nano,
	}
}

// WithContext returns a logger with the IDs stored in ctx.
func (l *StructuredLogger) WithContext(ctx context.Context) ContextLogger {
	return l.WithFields(fieldsFromContext(ctx))
}

// WithFields returns a logger with additional fields. The child writes to
// the same output as its parent.
func (l *StructuredLogger) WithFields(fields map[string]interface{}) ContextLogger {
	next := &StructuredLogger{
		level:      l.GetLevel(),
		service:    l.service,
		version:    l.version,
		out:        l.out,
		encoder:    l.encoder,
		fields:     make(map[string]interface{}, len(l.fields)+len(fields)),
		timeFormat: l.timeFormat,
	}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	for k, v := range fields {
		next.fields[k] = v
	}
	return next
}

// WithField returns a logger with an additional field.
func (l *StructuredLogger) WithField(key string, value interface{}) ContextLogger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *StructuredLogger) log(level Level, message string, args ...interface{}) {
	if !l.shouldLog(level) {
		return
	}

	msg, fields := splitArgs(message, args)
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(l.timeFormat),
		Level:     levelToString(level),
		Service:   l.service,
		Version:   l.version,
		Message:   msg,
		Fields:    fields,
	}

	if _, file, line, ok := runtime.Caller(2); ok {
		entry.Caller = fmt.Sprintf("%s:%d", file, line)
	}

	for k, v := range l.fields {
		id, isString := v.(string)
		switch {
		case k == string(correlationIDKey) && isString:
			entry.CorrelationID = id
		case k == string(requestIDKey) && isString:
			entry.RequestID = id
		case k == string(reviewIDKey) && isString:
			entry.ReviewID = id
		default:
			if entry.Fields == nil {
				entry.Fields = make(map[string]interface{})
			}
			if _, ok := entry.Fields[k]; !ok {
				entry.Fields[k] = v
			}
		}
	}

	l.out.Lock()
	defer l.out.Unlock()
	if err := l.encoder.Encode(entry); err != nil {
		fmt.Fprintf(os.Stderr, "[%s] %s: %s (json encoding failed: %v)\n",
			entry.Timestamp, entry.Level, entry.Message, err)
	}
}

// Debug logs a debug message.
func (l *StructuredLogger) Debug(message string, args ...interface{}) {
	l.log(DebugLevel, message, args...)
}

// Info logs an info message.
func (l *StructuredLogger) Info(message string, args ...interface{}) {
	l.log(InfoLevel, message, args...)
}

// Warn logs a warning message.
func (l *StructuredLogger) Warn(message string, args ...interface{}) {
	l.log(WarnLevel, message, args...)
}

// Error logs an error message.
func (l *StructuredLogger) Error(message string, args ...interface{}) {
	l.log(ErrorLevel, message, args...)
}

// Fatal logs an error message and exits.
func (l *StructuredLogger) Fatal(message string, args ...interface{}) {
	l.log(ErrorLevel, message, args...)
	os.Exit(1)
}

// SetLevel sets the logging level.
func (l *StructuredLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level.
func (l *StructuredLogger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *StructuredLogger) shouldLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func levelToString(level Level) string {
	switch level {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
