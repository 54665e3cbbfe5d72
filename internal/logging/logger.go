package logging

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger is a plain text logger.
type Logger struct {
	logger *log.Logger
	level  Level
	mu     sync.RWMutex
}

func NewLogger(prefix string, level string) *Logger {
	return NewLoggerWithWriter(os.Stderr, prefix, level)
}

// NewLoggerWithWriter creates a text logger writing to w.
func NewLoggerWithWriter(w io.Writer, prefix string, level string) *Logger {
	return &Logger{
		logger: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds),
		level:  ParseLevel(level),
	}
}

// ParseLevel maps a level name to a Level. Unknown names mean info.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Logger) shouldLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *Logger) output(level Level, extra map[string]interface{}, message string, args []interface{}) {
	if !l.shouldLog(level) {
		return
	}
	msg, fields := splitArgs(message, args)
	if len(extra) > 0 {
		if fields == nil {
			fields = make(map[string]interface{}, len(extra))
		}
		for k, v := range extra {
			if _, ok := fields[k]; !ok {
				fields[k] = v
			}
		}
	}

	line := "[" + levelToString(level) + "] " + msg
	if s := formatFields(fields); s != "" {
		line += " " + s
	}
	l.logger.Print(line)
}

func (l *Logger) Debug(message string, args ...interface{}) {
	l.output(DebugLevel, nil, message, args)
}

func (l *Logger) Info(message string, args ...interface{}) {
	l.output(InfoLevel, nil, message, args)
}

func (l *Logger) Warn(message string, args ...interface{}) {
	l.output(WarnLevel, nil, message, args)
}

func (l *Logger) Error(message string, args ...interface{}) {
	l.output(ErrorLevel, nil, message, args)
}

func (l *Logger) Fatal(message string, args ...interface{}) {
	l.output(ErrorLevel, nil, message, args)
	os.Exit(1)
}

// Printf lets the logger stand in for a *log.Logger.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Info(format, v...)
}
