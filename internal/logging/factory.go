package logging

import (
	"io"
	"os"
	"strings"
)

// LogFormat is the log output format.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// FormatEnv overrides the format when Config.Format is empty.
const FormatEnv = "KATAGO_RETRO_LOG_FORMAT"

// Config selects and configures a logger.
type Config struct {
	Level   string
	Format  LogFormat
	Service string
	Version string
	Prefix  string
	// Output defaults to stderr. The MCP stdio transport owns stdout.
	Output io.Writer
}

// NewLoggerFromConfig creates a logger. JSON is the default format.
func NewLoggerFromConfig(cfg *Config) ContextLogger {
	format := cfg.Format
	if format == "" {
		format = FormatJSON
		if env := os.Getenv(FormatEnv); env != "" {
			format = LogFormat(strings.ToLower(env))
		}
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	switch format {
	case FormatText:
		return NewLoggerAdapter(NewLoggerWithWriter(out, cfg.Prefix, cfg.Level))
	default:
		return NewStructuredLoggerWithWriter(out, cfg.Service, cfg.Version, cfg.Level)
	}
}
