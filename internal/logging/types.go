package logging

import (
	"strings"
	"time"
)

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// CategoryKey is the context field that names the subsystem an entry came from.
const CategoryKey = "sigserver.category"

var levelOrder = []Level{LevelDebug, LevelInfo, LevelWarning, LevelError}

// rank orders levels from debug (0) to error (3). Unknown levels rank as info.
func (level Level) rank() int {
	for index, known := range levelOrder {
		if level == known {
			return index
		}
	}
	return 1
}

func (level Level) valid() bool {
	for _, known := range levelOrder {
		if level == known {
			return true
		}
	}
	return false
}

func normalizeLevel(level Level) Level {
	if level.valid() {
		return level
	}
	return LevelInfo
}

func ParseLevel(value string) (Level, bool) {
	normalized := Level(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "warn" {
		return LevelWarning, true
	}
	if normalized.valid() {
		return normalized, true
	}
	return "", false
}

// LevelAtLeast reports whether level passes a minLevel filter. An empty
// filter passes everything.
func LevelAtLeast(level, minLevel Level) bool {
	if minLevel == "" {
		return true
	}
	return level.rank() >= minLevel.rank()
}

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

func (entry LogEntry) Category() string {
	return entry.Context[CategoryKey]
}

// Matches applies the level and category filters used by log queries and
// live subscribers.
func (entry LogEntry) Matches(minLevel Level, category string) bool {
	if !LevelAtLeast(entry.Level, minLevel) {
		return false
	}
	return category == "" || entry.Category() == category
}
