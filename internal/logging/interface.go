package logging

import (
	"strings"
	"time"
)

// LogEntry is one rendered record waiting in a batch.
type LogEntry struct {
	Timestamp time.Time
	Category  string
	Level     Level
	Message   string
}

// String returns the rendered line that is shipped for the entry.
func (e LogEntry) String() string {
	return e.Message
}

// EventID identifies a log event inside a category.
type EventID struct {
	ID   int
	Name string
}

// FallbackFunc renders state and error to text when no Formatter is configured.
type FallbackFunc func(state any, err error) string

// Formatter renders a log event into a single line of text.
type Formatter interface {
	Format(category string, level Level, eventID EventID, state any, err error) string
}

// Logger is the capability handed to the host application for one category.
type Logger interface {
	Log(level Level, eventID EventID, state any, err error, fallback FallbackFunc)
	IsEnabled(level Level) bool
}

// LoggerFactory hands out a Logger per category.
type LoggerFactory interface {
	CreateLogger(category string) Logger
}

// Sink delivers a flushed batch. It owns the slice it receives.
type Sink func(entries []LogEntry)

type BatchConfig struct {
	MaxCount    int
	MaxInterval time.Duration
}

// Render picks the formatter, falls back to fallback, and reports false when
// the resulting text is blank.
func Render(f Formatter, category string, level Level, eventID EventID, state any, err error, fallback FallbackFunc) (string, bool) {
	var text string
	if f != nil {
		text = f.Format(category, level, eventID, state, err)
	} else if fallback != nil {
		text = fallback(state, err)
	}

	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}
