package hec

import (
	"time"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging/provider"
)

// Logger filters by threshold, renders, and enqueues events for one category.
type Logger struct {
	category  string
	threshold logging.Level
	sender    *Sender
	formatter logging.Formatter
}

func NewLogger(category string, threshold logging.Level, sender *Sender, formatter logging.Formatter) *Logger {
	return &Logger{
		category:  category,
		threshold: threshold,
		sender:    sender,
		formatter: formatter,
	}
}

func (l *Logger) IsEnabled(level logging.Level) bool {
	return level.Enabled(l.threshold)
}

func (l *Logger) Log(level logging.Level, eventID logging.EventID, state any, err error, fallback logging.FallbackFunc) {
	if !l.IsEnabled(level) {
		return
	}

	text, ok := logging.Render(l.formatter, l.category, level, eventID, state, err, fallback)
	if !ok {
		return
	}

	l.sender.Enqueue(logging.LogEntry{
		Timestamp: time.Now(),
		Category:  l.category,
		Level:     level,
		Message:   text,
	})
}

// NewProvider returns a per-category cache of Loggers sharing sender.
func NewProvider(sender *Sender, threshold logging.Level, formatter logging.Formatter) *provider.Provider {
	return provider.New(func(category string) logging.Logger {
		return NewLogger(category, threshold, sender, formatter)
	})
}
