package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  string
		testFunc  func(*Logger)
		shouldLog bool
	}{
		{"debug level logs everything", "debug", func(l *Logger) { l.Debug("test") }, true},
		{"info level skips debug", "info", func(l *Logger) { l.Debug("test") }, false},
		{"info level logs info", "info", func(l *Logger) { l.Info("test") }, true},
		{"error level skips warn", "error", func(l *Logger) { l.Warn("test") }, false},
		{"error level logs errors", "error", func(l *Logger) { l.Error("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(&buf, "[TEST] ", tt.logLevel)

			tt.testFunc(logger)

			if hasOutput := buf.Len() > 0; hasOutput != tt.shouldLog {
				t.Errorf("Expected shouldLog=%v but got output=%v", tt.shouldLog, hasOutput)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{" error ", ErrorLevel},
		{"unknown", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if level := ParseLevel(tt.input); level != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, level, tt.expected)
			}
		})
	}
}

func TestLoggerSetLevel(t *testing.T) {
	logger := NewLogger("[TEST] ", "info")
	if logger.GetLevel() != InfoLevel {
		t.Errorf("Expected initial level to be InfoLevel")
	}

	logger.SetLevel(DebugLevel)
	if logger.GetLevel() != DebugLevel {
		t.Errorf("Expected level to be DebugLevel after SetLevel")
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "[TEST] ", "info")

	logger.Info("Loaded %d faults", 3, "color", "white", "review_id", "r-1")

	output := buf.String()
	for _, want := range []string{"[TEST]", "[INFO]", "Loaded 3 faults", "color=white review_id=r-1"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "EXTRA") {
		t.Errorf("Key-value args leaked into the format: %s", output)
	}
}

func TestLoggerAdapterFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerAdapter(NewLoggerWithWriter(&buf, "", "debug"))

	scoped := base.WithField("review_id", "r-1").WithFields(map[string]interface{}{"color": "black"})
	scoped.Debug("Attempt judged", "verdict", "win")

	output := buf.String()
	if !strings.Contains(output, "color=black review_id=r-1 verdict=win") {
		t.Errorf("Expected sorted fields in output, got: %s", output)
	}

	buf.Reset()
	base.Info("plain")
	if strings.Contains(buf.String(), "review_id") {
		t.Errorf("Parent logger must not see child fields: %s", buf.String())
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		args     []interface{}
		wantMsg  string
		wantKeys []string
	}{
		{"key-value pairs", "Tool request received", []interface{}{"tool", "playMove", "client", "anonymous"}, "Tool request received", []string{"tool", "client"}},
		{"printf style", "Processing %d items", []interface{}{42}, "Processing 42 items", nil},
		{"printf then fields", "Scanned %s", []interface{}{"game", "faults", 2}, "Scanned game", []string{"faults"}},
		{"escaped percent", "100%% done", []interface{}{"k", "v"}, "100%% done", []string{"k"}},
		{"odd number of args", "Rate limited", []interface{}{"client", "a", "dangling"}, "Rate limited", []string{"client", "extra"}},
		{"no args", "Simple", nil, "Simple", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, fields := splitArgs(tt.message, tt.args)
			if msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
			if len(fields) != len(tt.wantKeys) {
				t.Errorf("got %d fields, want %d: %v", len(fields), len(tt.wantKeys), fields)
			}
			for _, k := range tt.wantKeys {
				if _, ok := fields[k]; !ok {
					t.Errorf("missing field %q in %v", k, fields)
				}
			}
		})
	}
}
