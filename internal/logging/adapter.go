package logging

import (
	"context"
	"os"
)

// LoggerAdapter gives the text Logger scoped fields.
type LoggerAdapter struct {
	*Logger
	fields map[string]interface{}
}

// NewLoggerAdapter wraps a text logger.
func NewLoggerAdapter(logger *Logger) *LoggerAdapter {
	return &LoggerAdapter{
		Logger: logger,
		fields: make(map[string]interface{}),
	}
}

// WithContext returns a logger carrying the IDs stored in ctx.
func (l *LoggerAdapter) WithContext(ctx context.Context) ContextLogger {
	return l.WithFields(fieldsFromContext(ctx))
}

// WithField returns a new logger with an additional field.
func (l *LoggerAdapter) WithField(key string, value interface{}) ContextLogger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with additional fields.
func (l *LoggerAdapter) WithFields(fields map[string]interface{}) ContextLogger {
	next := &LoggerAdapter{
		Logger: l.Logger,
		fields: make(map[string]interface{}, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	for k, v := range fields {
		next.fields[k] = v
	}
	return next
}

func (l *LoggerAdapter) Debug(message string, args ...interface{}) {
	l.output(DebugLevel, l.fields, message, args)
}

func (l *LoggerAdapter) Info(message string, args ...interface{}) {
	l.output(InfoLevel, l.fields, message, args)
}

func (l *LoggerAdapter) Warn(message string, args ...interface{}) {
	l.output(WarnLevel, l.fields, message, args)
}

func (l *LoggerAdapter) Error(message string, args ...interface{}) {
	l.output(ErrorLevel, l.fields, message, args)
}

func (l *LoggerAdapter) Fatal(message string, args ...interface{}) {
	l.output(ErrorLevel, l.fields, message, args)
	os.Exit(1)
}
