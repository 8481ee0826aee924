package daemon

import (
	"sync"
)

type ForwarderMetrics struct {
	FilesDiscovered    int
	FilesTailed        int
	FilesFailed        int
	LinesForwarded     int
	QueuedFiles        int
	FilesQueueCapacity int
	WorkersBusy        int
	mu                 sync.RWMutex
}

func (m *ForwarderMetrics) IncFilesDiscovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesDiscovered++
}

func (m *ForwarderMetrics) IncFilesTailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesTailed++
}

func (m *ForwarderMetrics) IncFilesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesFailed++
}

func (m *ForwarderMetrics) IncLinesForwarded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinesForwarded++
}

func (m *ForwarderMetrics) IncQueuedFiles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueuedFiles++
}

func (m *ForwarderMetrics) DecQueuedFiles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueuedFiles--
}

func (m *ForwarderMetrics) IncWorkersBusy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkersBusy++
}

func (m *ForwarderMetrics) DecWorkersBusy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkersBusy--
}

// GetMetricsStamp returns a copy safe to read without the lock.
func (m *ForwarderMetrics) GetMetricsStamp() ForwarderMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ForwarderMetrics{
		FilesDiscovered:    m.FilesDiscovered,
		FilesTailed:        m.FilesTailed,
		FilesFailed:        m.FilesFailed,
		LinesForwarded:     m.LinesForwarded,
		QueuedFiles:        m.QueuedFiles,
		FilesQueueCapacity: m.FilesQueueCapacity,
		WorkersBusy:        m.WorkersBusy,
	}
}

func (m *ForwarderMetrics) GetQueueUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FilesQueueCapacity == 0 {
		return 0
	}
	return float64(m.QueuedFiles) / float64(m.FilesQueueCapacity)
}
