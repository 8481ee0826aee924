// Package udp ships log lines as fire-and-forget datagrams.
package udp

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging/provider"
)

const lineSeparator = "\n"

type Config struct {
	HostName string
	Port     int
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HostName) == "" {
		return fmt.Errorf("udp host name is empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("udp port %d out of range", c.Port)
	}
	return nil
}

type Stats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

// Sender writes each line as one datagram. The socket is never connected;
// the destination is resolved and passed on every write.
type Sender struct {
	config Config
	conn   net.PacketConn

	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

func NewSender(config Config) (*Sender, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open udp socket: %w", err)
	}

	return &Sender{
		config: config,
		conn:   conn,
	}, nil
}

// Send dispatches line without waiting for the write. Blank lines are dropped.
func (s *Sender) Send(line string) {
	if strings.TrimSpace(line) == "" {
		s.dropped.Add(1)
		return
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}

	data := encodeASCII(line + lineSeparator)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.write(data)
	}()
}

func (s *Sender) write(data []byte) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.config.HostName, strconv.Itoa(s.config.Port)))
	if err != nil {
		s.failed.Add(1)
		slog.Warn("Failed to resolve udp destination", "host", s.config.HostName, "error", err)
		return
	}

	if _, err := s.conn.WriteTo(data, addr); err != nil {
		s.failed.Add(1)
		slog.Warn("Failed to send datagram", "addr", addr.String(), "error", err)
		return
	}
	s.sent.Add(1)
}

func (s *Sender) Stats() Stats {
	return Stats{
		Sent:    s.sent.Load(),
		Failed:  s.failed.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Close waits for in-flight datagrams and releases the socket.
func (s *Sender) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.wg.Wait()
	return s.conn.Close()
}

// encodeASCII replaces every non 7-bit rune with '?'.
func encodeASCII(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 127 {
			out = append(out, '?')
			continue
		}
		out = append(out, byte(r))
	}
	return out
}

// Logger renders events for one category and hands them to a shared Sender.
type Logger struct {
	category  string
	sender    *Sender
	formatter logging.Formatter
}

func NewLogger(category string, sender *Sender, formatter logging.Formatter) *Logger {
	return &Logger{
		category:  category,
		sender:    sender,
		formatter: formatter,
	}
}

func (l *Logger) IsEnabled(level logging.Level) bool {
	return level != logging.LevelNone
}

func (l *Logger) Log(level logging.Level, eventID logging.EventID, state any, err error, fallback logging.FallbackFunc) {
	if !l.IsEnabled(level) {
		return
	}

	text, ok := logging.Render(l.formatter, l.category, level, eventID, state, err, fallback)
	if !ok {
		l.sender.dropped.Add(1)
		return
	}
	l.sender.Send(text)
}

// NewProvider returns a per-category cache of Loggers sharing sender.
func NewProvider(sender *Sender, formatter logging.Formatter) *provider.Provider {
	return provider.New(func(category string) logging.Logger {
		return NewLogger(category, sender, formatter)
	})
}
