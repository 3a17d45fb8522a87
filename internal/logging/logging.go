// Package logging builds the slog loggers used by the bridge and chat hosts.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/util"
)

// Format selects the slog handler.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseLevel maps LOG_LEVEL style names to slog levels. Unknown or empty
// values resolve to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w at the given level.
func New(w io.Writer, level string, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ForMCP adapts logger to the printf-style logger mcp-go transports accept.
func ForMCP(logger *slog.Logger) util.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return mcpLogger{logger: logger}
}

type mcpLogger struct {
	logger *slog.Logger
}

func (l mcpLogger) Infof(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "mcp-transport")
}

func (l mcpLogger) Errorf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "mcp-transport")
}
