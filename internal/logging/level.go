package logging

import (
	"fmt"
	"strings"
)

type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInformation
	LevelWarning
	LevelError
	LevelCritical
	LevelNone
)

var levelNames = [...]string{
	LevelTrace:       "TRACE",
	LevelDebug:       "DEBUG",
	LevelInformation: "INFO",
	LevelWarning:     "WARN",
	LevelError:       "ERROR",
	LevelCritical:    "CRITICAL",
	LevelNone:        "NONE",
}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// Enabled reports whether an event at l passes threshold. LevelNone never passes.
func (l Level) Enabled(threshold Level) bool {
	return l != LevelNone && l >= threshold
}

// ParseLevel converts a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "INFORMATION":
		return LevelInformation, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERR", "ERROR":
		return LevelError, nil
	case "CRITICAL", "FATAL":
		return LevelCritical, nil
	case "NONE":
		return LevelNone, nil
	default:
		return LevelNone, fmt.Errorf("unknown log level %q", s)
	}
}
