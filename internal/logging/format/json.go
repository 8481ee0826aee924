package format

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
)

type jsonLine struct {
	Time      string `json:"time"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	EventID   int    `json:"event_id"`
	EventName string `json:"event_name,omitempty"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// JSONFormatter renders one JSON object per event. Splunk extracts the
// fields at search time, the payload is still raw text to the collector.
type JSONFormatter struct {
	cfg Config
}

func NewJSONFormatter(cfg Config) *JSONFormatter {
	return &JSONFormatter{cfg: cfg.withDefaults()}
}

func (f *JSONFormatter) Format(category string, level logging.Level, eventID logging.EventID, state any, err error) string {
	msg := Message(state)
	if strings.TrimSpace(msg) == "" && err == nil {
		return ""
	}

	line := jsonLine{
		Time:      f.cfg.Now().Format(f.cfg.TimestampFormat),
		Level:     level.String(),
		Category:  category,
		EventID:   eventID.ID,
		EventName: eventID.Name,
		Message:   msg,
	}
	if err != nil {
		line.Error = err.Error()
	}

	out, mErr := json.Marshal(line)
	if mErr != nil {
		return ""
	}
	return string(out)
}
