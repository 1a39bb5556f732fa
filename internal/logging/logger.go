package logging

import (
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultBufferSize = 1000

// sink is shared by a logger and every child created with With.
type sink struct {
	buffer *LogBuffer
	hub    *LogHub
	level  atomic.Value

	writeMu sync.Mutex
	output  io.Writer
}

type Logger struct {
	sink   *sink
	fields map[string]string
	now    func() time.Time
}

func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stdout)
}

// NewLoggerWithOutput writes one logfmt line per entry to output, keeps the
// entry in buffer and pushes it to live subscribers.
func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	if output == nil {
		output = io.Discard
	}
	s := &sink{
		buffer: buffer,
		hub:    NewLogHub(),
		output: output,
	}
	s.level.Store(normalizeLevel(minLevel))
	return &Logger{sink: s, now: time.Now}
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.sink.buffer
}

// Subscribe streams new entries at or above minLevel, optionally limited to
// one category.
func (l *Logger) Subscribe(minLevel Level, category string) (<-chan LogEntry, func()) {
	if l == nil {
		return nil, func() {}
	}
	return l.sink.hub.Subscribe(minLevel, category, 0)
}

func (l *Logger) Subscribers() int {
	if l == nil {
		return 0
	}
	return l.sink.hub.Len()
}

// With returns a child logger that adds fields to every entry. Level changes
// on either logger apply to both.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		sink:   l.sink,
		fields: mergeFields(l.fields, fields),
		now:    l.now,
	}
}

func (l *Logger) Level() Level {
	if l == nil {
		return LevelInfo
	}
	return l.sink.level.Load().(Level)
}

func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.sink.level.Store(normalizeLevel(level))
}

func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return LevelAtLeast(level, l.Level())
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

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if !l.Enabled(level) {
		return
	}
	entry := LogEntry{
		Timestamp: l.now().UTC(),
		Level:     level,
		Message:   message,
		Context:   mergeFields(l.fields, fields),
	}
	l.sink.buffer.Add(entry)
	l.sink.hub.Broadcast(entry)

	line := formatEntry(entry)
	l.sink.writeMu.Lock()
	_, _ = io.WriteString(l.sink.output, line)
	l.sink.writeMu.Unlock()
}

func mergeFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}

// formatEntry renders "ts=... level=... category=... msg=... k=v" with the
// remaining context keys sorted.
func formatEntry(entry LogEntry) string {
	var builder strings.Builder
	builder.WriteString("ts=")
	builder.WriteString(entry.Timestamp.Format(time.RFC3339Nano))
	builder.WriteString(" level=")
	builder.WriteString(string(entry.Level))
	if category := entry.Category(); category != "" {
		builder.WriteString(" category=")
		builder.WriteString(category)
	}
	builder.WriteString(" msg=")
	builder.WriteString(strconv.Quote(entry.Message))

	keys := make([]string, 0, len(entry.Context))
	for key := range entry.Context {
		if key != CategoryKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		builder.WriteByte(' ')
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(strconv.Quote(entry.Context[key]))
	}
	builder.WriteByte('\n')
	return builder.String()
}
