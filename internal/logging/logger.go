// Package logging is dirwatch's leveled logger. Every entry goes to an
// in-memory ring served by /api/logs and, as one logfmt line, to an
// optional writer.
package logging

import (
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const DefaultBufferSize = 1000

var levelRanks = map[Level]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

type Logger struct {
	buffer   *LogBuffer
	out      *lockedWriter
	minLevel Level
	base     map[string]string
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) writeLine(line string) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, _ = io.WriteString(lw.w, line)
}

func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stderr)
}

// NewLoggerWithOutput logs at minLevel and above. A nil buffer gets a
// default-sized ring; a nil output keeps entries in the ring only.
func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	if _, known := levelRanks[minLevel]; !known {
		minLevel = LevelInfo
	}
	logger := &Logger{buffer: buffer, minLevel: minLevel}
	if output != nil && output != io.Discard {
		logger.out = &lockedWriter{w: output}
	}
	return logger
}

// NewDiscardLogger returns a logger that keeps entries in a small buffer only.
func NewDiscardLogger() *Logger {
	return NewLoggerWithOutput(NewLogBuffer(64), LevelInfo, nil)
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.buffer
}

// With returns a logger that adds fields to every entry. The buffer and
// output are shared with l.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return nil
	}
	child := *l
	child.base = mergeFields(l.base, fields)
	return &child
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	return l != nil && LevelAtLeast(level, l.minLevel)
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if !l.Enabled(level) {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   mergeFields(l.base, fields),
	}
	l.buffer.Add(entry)
	if l.out != nil {
		l.out.writeLine(entry.logfmt())
	}
}

// LevelAtLeast reports whether level is as severe as minimum. Unknown levels
// rank as info.
func LevelAtLeast(level, minimum Level) bool {
	return rank(level) >= rank(minimum)
}

func rank(level Level) int {
	if value, ok := levelRanks[level]; ok {
		return value
	}
	return levelRanks[LevelInfo]
}

func ParseLevel(value string) (Level, bool) {
	normalized := Level(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "warn" {
		return LevelWarning, true
	}
	if _, ok := levelRanks[normalized]; ok {
		return normalized, true
	}
	return "", false
}

func mergeFields(base, extra map[string]string) map[string]string {
	if len(base)+len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	maps.Copy(merged, base)
	maps.Copy(merged, extra)
	return merged
}

// logfmt renders time, level, message and then the fields in key order.
func (entry LogEntry) logfmt() string {
	var line strings.Builder
	line.WriteString("time=")
	line.WriteString(entry.Timestamp.Format(time.RFC3339))
	line.WriteString(" level=")
	line.WriteString(string(entry.Level))
	line.WriteString(" msg=")
	line.WriteString(strconv.Quote(entry.Message))
	for _, key := range slices.Sorted(maps.Keys(entry.Context)) {
		line.WriteByte(' ')
		line.WriteString(key)
		line.WriteByte('=')
		line.WriteString(strconv.Quote(entry.Context[key]))
	}
	line.WriteByte('\n')
	return line.String()
}
