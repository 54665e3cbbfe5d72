package logging

import "context"

// LoggerInterface is implemented by every logger in this package. Messages
// may carry printf verbs; arguments left over after the verbs are read as
// key-value pairs.
type LoggerInterface interface {
	Debug(message string, args ...interface{})
	Info(message string, args ...interface{})
	Warn(message string, args ...interface{})
	Error(message string, args ...interface{})
	Fatal(message string, args ...interface{})

	SetLevel(level Level)
	GetLevel() Level
}

// ContextLogger adds scoped fields to LoggerInterface.
type ContextLogger interface {
	LoggerInterface
	WithContext(ctx context.Context) ContextLogger
	WithField(key string, value interface{}) ContextLogger
	WithFields(fields map[string]interface{}) ContextLogger
}

var (
	_ LoggerInterface = (*Logger)(nil)
	_ ContextLogger   = (*LoggerAdapter)(nil)
	_ ContextLogger   = (*StructuredLogger)(nil)
)
