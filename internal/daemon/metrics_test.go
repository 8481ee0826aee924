package daemon

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForwarderMetrics_BasicOperations(t *testing.T) {
	metrics := &ForwarderMetrics{}

	metrics.IncFilesDiscovered()
	metrics.IncFilesTailed()
	metrics.IncFilesFailed()
	metrics.IncLinesForwarded()
	metrics.IncWorkersBusy()

	result := metrics.GetMetricsStamp()

	assert.Equal(t, 1, result.FilesDiscovered)
	assert.Equal(t, 1, result.FilesTailed)
	assert.Equal(t, 1, result.FilesFailed)
	assert.Equal(t, 1, result.LinesForwarded)
	assert.Equal(t, 1, result.WorkersBusy)

	metrics.DecWorkersBusy()
	assert.Equal(t, 0, metrics.GetMetricsStamp().WorkersBusy)
}

func TestForwarderMetrics_QueueUsage(t *testing.T) {
	metrics := &ForwarderMetrics{}
	assert.Equal(t, 0.0, metrics.GetQueueUsage())

	metrics.FilesQueueCapacity = 10
	for i := 0; i < 5; i++ {
		metrics.IncQueuedFiles()
	}
	assert.InDelta(t, 0.5, metrics.GetQueueUsage(), 1e-9)

	metrics.DecQueuedFiles()
	assert.InDelta(t, 0.4, metrics.GetQueueUsage(), 1e-9)
}

func TestForwarderMetrics_Concurrent(t *testing.T) {
	metrics := &ForwarderMetrics{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				metrics.IncLinesForwarded()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, metrics.GetMetricsStamp().LinesForwarded)
}
