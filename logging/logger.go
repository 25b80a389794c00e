// Package logging sets up the process-wide slog logger.
//
// Lines look like:
//
//	2026-01-06T14:05:52Z [clubsync] INFO Report written report=moorings rows=42
//
// Call Init once at startup, then use slog directly. Groups render as dotted
// key prefixes (run.id=...).
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ISO8601Handler writes one plain-text line per record.
type ISO8601Handler struct {
	source string
	level  slog.Leveler
	mu     *sync.Mutex
	writer io.Writer
	prefix string // rendered WithAttrs output
	group  string // dotted group path applied to later attrs
}

// NewHandler creates a handler writing to w.
func NewHandler(source string, w io.Writer, level slog.Leveler) *ISO8601Handler {
	return &ISO8601Handler{
		source: source,
		level:  level,
		mu:     &sync.Mutex{},
		writer: w,
	}
}

func (h *ISO8601Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ISO8601Handler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder
	buf.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05Z"))
	buf.WriteString(" [")
	buf.WriteString(h.source)
	buf.WriteString("] ")
	buf.WriteString(r.Level.String())
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	buf.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&buf, h.group, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, buf.String())
	return err
}

func (h *ISO8601Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf strings.Builder
	buf.WriteString(h.prefix)
	for _, a := range attrs {
		appendAttr(&buf, h.group, a)
	}
	clone := *h
	clone.prefix = buf.String()
	return &clone
}

func (h *ISO8601Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = joinKey(h.group, name)
	return &clone
}

func appendAttr(buf *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := joinKey(group, a.Key)
		for _, ga := range a.Value.Group() {
			appendAttr(buf, inner, ga)
		}
		return
	}

	buf.WriteByte(' ')
	buf.WriteString(joinKey(group, a.Key))
	buf.WriteByte('=')
	buf.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindTime:
		s = v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		s = v.Duration().String()
	default:
		s = fmt.Sprintf("%v", v.Any())
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	if key == "" {
		return group
	}
	return group + "." + key
}

// NewLogger creates a logger at the level from the environment.
func NewLogger(source string, w io.Writer) *slog.Logger {
	return NewLoggerWithLevel(source, w, getLevelFromEnv())
}

// NewLoggerWithLevel creates a logger with an explicit level.
func NewLoggerWithLevel(source string, w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewHandler(source, w, level))
}

// getLevelFromEnv reads LOG_LEVEL, falling back to LOGLEVEL.
func getLevelFromEnv() slog.Level {
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOGLEVEL")
	}
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the default logger writing to stdout.
func Init(source string) {
	InitWithWriter(source, os.Stdout)
}

// InitWithWriter installs the default logger writing to w.
func InitWithWriter(source string, w io.Writer) {
	slog.SetDefault(NewLogger(source, w))
}

// RedactEmail masks an email address for logs.
// "pat.doe@example.com" becomes "pa***@example.com".
func RedactEmail(email string) string {
	name, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(name) > 2 {
		return name[:2] + "***@" + domain
	}
	return "***@" + domain
}
