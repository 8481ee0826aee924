// Package hec ships batched raw log lines to a Splunk HTTP Event Collector.
package hec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging/batch"
)

const (
	rawPath       = "raw"
	lineSeparator = "\n"
)

type Config struct {
	CollectorURL  string
	Token         string
	Timeout       time.Duration
	BatchSize     int
	BatchInterval time.Duration
	Gzip          bool
}

type Stats struct {
	Batches uint64
	Entries uint64
	Failed  uint64
}

// Sender owns a batch engine whose sink POSTs each batch to
// <collector>/raw?channel=<uuid>. POSTs run in their own goroutine and
// their outcome is only counted and logged.
type Sender struct {
	endpoint   string
	channel    string
	token      string
	gzip       bool
	httpClient *http.Client
	engine     *batch.Engine

	inflight sync.WaitGroup

	batches atomic.Uint64
	entries atomic.Uint64
	failed  atomic.Uint64
}

func NewSender(ctx context.Context, config Config) (*Sender, error) {
	channel := uuid.NewString()
	endpoint, err := rawEndpoint(config.CollectorURL, channel)
	if err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		return nil, fmt.Errorf("hec timeout must be positive, got %s", config.Timeout)
	}

	s := &Sender{
		endpoint: endpoint,
		channel:  channel,
		token:    config.Token,
		gzip:     config.Gzip,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: newTransport(),
		},
	}

	s.engine, err = batch.NewEngine(ctx, logging.BatchConfig{
		MaxCount:    config.BatchSize,
		MaxInterval: config.BatchInterval,
	}, s.flush)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch engine: %w", err)
	}

	slog.Info("HEC sender enabled", "endpoint", endpoint, "batch_size", config.BatchSize, "batch_interval", config.BatchInterval)
	return s, nil
}

func rawEndpoint(collectorURL, channel string) (string, error) {
	if strings.TrimSpace(collectorURL) == "" {
		return "", fmt.Errorf("hec collector URL is empty")
	}

	u, err := url.Parse(collectorURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse hec collector URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("hec collector URL %q must be http or https", collectorURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("hec collector URL %q has no host", collectorURL)
	}

	u = u.JoinPath(rawPath)
	q := u.Query()
	q.Set("channel", channel)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Sender) Endpoint() string {
	return s.endpoint
}

func (s *Sender) Channel() string {
	return s.channel
}

// Enqueue adds one rendered line to the batch.
func (s *Sender) Enqueue(entry logging.LogEntry) {
	s.engine.Add(entry)
}

// newTransport keeps connections to the collector alive between batches.
func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func (s *Sender) flush(entries []logging.LogEntry) {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	payload := strings.Join(lines, lineSeparator)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.failed.Add(1)
				slog.Error("HEC post panicked", "panic", r)
			}
		}()

		if err := s.post(payload); err != nil {
			s.failed.Add(1)
			slog.Warn("Failed to send batch to HEC", "entries", len(entries), "error", err)
			return
		}
		s.batches.Add(1)
		s.entries.Add(uint64(len(entries)))
		slog.Debug("Sent batch to HEC", "entries", len(entries))
	}()
}

func (s *Sender) post(payload string) error {
	body, err := s.encode(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, s.endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Splunk "+s.token)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if s.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("hec returned status %d: %s", resp.StatusCode, string(responseBody))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func (s *Sender) encode(payload string) (io.Reader, error) {
	if !s.gzip {
		return strings.NewReader(payload), nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(payload)); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	return &buf, nil
}

func (s *Sender) Stats() Stats {
	return Stats{
		Batches: s.batches.Load(),
		Entries: s.entries.Load(),
		Failed:  s.failed.Load(),
	}
}

// Close flushes the residual batch and waits for every POST to finish.
func (s *Sender) Close() {
	s.engine.Stop()
	s.inflight.Wait()
	s.httpClient.CloseIdleConnections()
	slog.Info("HEC sender shut down", "stats", s.Stats())
}
