package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
)

// MockSink records every batch handed to Sink.
type MockSink struct {
	Batches [][]logging.LogEntry
	Times   []time.Time
	mu      sync.Mutex
}

func (m *MockSink) Sink(entries []logging.LogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Batches = append(m.Batches, entries)
	m.Times = append(m.Times, time.Now())
}

func (m *MockSink) GetBatches() [][]logging.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]logging.LogEntry, len(m.Batches))
	copy(out, m.Batches)
	return out
}

func (m *MockSink) GetFlushTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.Times))
	copy(out, m.Times)
	return out
}

// Messages flattens all recorded batches.
func (m *MockSink) Messages() []string {
	var out []string
	for _, batch := range m.GetBatches() {
		for _, entry := range batch {
			out = append(out, entry.Message)
		}
	}
	return out
}

type LoggedEvent struct {
	Category string
	Level    logging.Level
	EventID  logging.EventID
	Message  string
	Err      error
}

// MockLogger records events, rendering them through the fallback.
type MockLogger struct {
	Category  string
	Threshold logging.Level
	Events    []LoggedEvent
	mu        sync.Mutex
}

func (m *MockLogger) Log(level logging.Level, eventID logging.EventID, state any, err error, fallback logging.FallbackFunc) {
	if !m.IsEnabled(level) {
		return
	}

	message := fmt.Sprint(state)
	if fallback != nil {
		message = fallback(state, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, LoggedEvent{
		Category: m.Category,
		Level:    level,
		EventID:  eventID,
		Message:  message,
		Err:      err,
	})
}

func (m *MockLogger) IsEnabled(level logging.Level) bool {
	return level.Enabled(m.Threshold)
}

func (m *MockLogger) GetEvents() []LoggedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LoggedEvent, len(m.Events))
	copy(out, m.Events)
	return out
}

// MockLoggerFactory hands out one MockLogger per category.
type MockLoggerFactory struct {
	Loggers map[string]*MockLogger
	Calls   int
	mu      sync.Mutex
}

func (m *MockLoggerFactory) CreateLogger(category string) logging.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.Loggers == nil {
		m.Loggers = make(map[string]*MockLogger)
	}
	l, ok := m.Loggers[category]
	if !ok {
		l = &MockLogger{Category: category}
		m.Loggers[category] = l
	}
	return l
}

func (m *MockLoggerFactory) Get(category string) *MockLogger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Loggers[category]
}

// CreateTempLogStructure lays out a small tree of service logs plus files
// the forwarder must ignore.
func CreateTempLogStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"billing/api.log":          "started\nrequest served\n",
		"billing/worker.log":       "job queued\n",
		"billing/worker.log.1":     "rotated\n",
		"auth/api.log":             "login ok\n",
		"auth/audit/security.log":  "token issued\n",
		"gateway/access.log":       "GET / 200\n",
		"gateway/README.txt":       "not a log\n",
		"gateway/nested/error.log": "upstream timeout\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}
