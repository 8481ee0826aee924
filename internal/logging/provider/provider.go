// Package provider caches one Logger per category.
package provider

import (
	"sync"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
)

// Factory builds the Logger for a category.
type Factory func(category string) logging.Logger

// Provider maps a category name to exactly one Logger for its lifetime.
// It implements logging.LoggerFactory.
type Provider struct {
	factory Factory
	// loggers is a map from category to logging.Logger. It is concurrency-safe.
	loggers sync.Map
}

func New(factory Factory) *Provider {
	return &Provider{factory: factory}
}

// CreateLogger returns the cached Logger for category, creating it on first use.
// Concurrent first calls may both run the factory; only one result is ever published.
func (p *Provider) CreateLogger(category string) logging.Logger {
	if l, ok := p.loggers.Load(category); ok {
		return l.(logging.Logger)
	}

	actual, _ := p.loggers.LoadOrStore(category, p.factory(category))
	return actual.(logging.Logger)
}

// Len returns the number of cached loggers.
func (p *Provider) Len() int {
	n := 0
	p.loggers.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Dispose drops every cached Logger. Pending batches are not flushed; that
// is the owning sender's job.
func (p *Provider) Dispose() {
	p.loggers.Clear()
}
