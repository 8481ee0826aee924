// Package format holds the Formatter implementations shipped with the agent.
package format

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
)

// Config holds common formatter configuration
type Config struct {
	// TimestampFormat specifies the time format (empty for RFC3339)
	TimestampFormat string
	// Now is used in tests to pin timestamps.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TimestampFormat == "" {
		c.TimestampFormat = time.RFC3339
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// New returns the formatter registered under name ("text" or "json").
func New(name string, cfg Config) (logging.Formatter, error) {
	switch strings.ToLower(name) {
	case "", "text":
		return NewTextFormatter(cfg), nil
	case "json":
		return NewJSONFormatter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown formatter %q", name)
	}
}

// Message renders state as text. Strings and fmt.Stringers pass through.
func Message(state any) string {
	switch s := state.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

// Fallback is the FallbackFunc used when a caller does not supply one.
func Fallback(state any, err error) string {
	msg := Message(state)
	if err == nil {
		return msg
	}
	if strings.TrimSpace(msg) == "" {
		return err.Error()
	}
	return msg + " | " + err.Error()
}

var bufferPool = &sync.Pool{
	New: func() interface{} {
		b := new(bytes.Buffer)
		b.Grow(256)
		return b
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 64*1024 {
		return
	}
	bufferPool.Put(buf)
}
