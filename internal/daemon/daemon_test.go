package daemon

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/testutils"
)

const defaultScanInterval = 10 * time.Millisecond

func makeTestConfig(root string) Config {
	return Config{
		LogRootPath:   root,
		ScanInterval:  defaultScanInterval,
		Workers:       2,
		FileQueueSize: 10,
		Level:         logging.LevelInformation,
	}
}

func appendLines(t *testing.T, file string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	for _, l := range lines {
		_, err = f.WriteString(l + "\n")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
}

func TestForwarder_ContextCancellation(t *testing.T) {
	factory := &testutils.MockLoggerFactory{}
	config := makeTestConfig(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	f := NewForwarder(ctx, config, factory)
	f.Start()

	cancel()
	time.Sleep(20 * time.Millisecond)

	select {
	case <-f.ctx.Done():
	default:
		t.Fatalf("forwarder context not cancelled")
	}

	f.Stop()
	f.Stop()
}

func TestCategory(t *testing.T) {
	assert.Equal(t, "api", Category("/srv/logs/billing/api.log"))
	assert.Equal(t, "worker.log", Category("/srv/logs/worker.log.1"))
	assert.Equal(t, "plain", Category("plain"))
}

func TestDiscoverLogFiles_UsesTempStructure(t *testing.T) {
	root := testutils.CreateTempLogStructure(t)
	f := NewForwarder(context.TODO(), makeTestConfig(root))

	files, err := f.discoverLogFiles()
	assert.NoError(t, err)
	assert.Len(t, files, 6)
}

func TestScanFiles_QueuesEachFileOnce(t *testing.T) {
	tempDir := t.TempDir()
	_ = os.WriteFile(filepath.Join(tempDir, "a.log"), []byte("one\n"), 0644)
	_ = os.WriteFile(filepath.Join(tempDir, "b.log"), []byte("two\n"), 0644)
	_ = os.WriteFile(filepath.Join(tempDir, "c.txt"), []byte("ignore\n"), 0644)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	f := NewForwarder(ctx, makeTestConfig(tempDir), &testutils.MockLoggerFactory{})

	f.scanFiles()
	f.scanFiles()

	metrics := f.metrics.GetMetricsStamp()
	assert.Equal(t, 2, metrics.QueuedFiles)
	assert.Equal(t, 2, metrics.FilesDiscovered)
}

func TestScanFiles_QueueFullReleasesFile(t *testing.T) {
	tempDir := t.TempDir()
	_ = os.WriteFile(filepath.Join(tempDir, "a.log"), nil, 0644)
	_ = os.WriteFile(filepath.Join(tempDir, "b.log"), nil, 0644)

	config := makeTestConfig(tempDir)
	config.FileQueueSize = 1
	f := NewForwarder(context.TODO(), config, &testutils.MockLoggerFactory{})

	f.scanFiles()
	assert.Equal(t, 1, f.metrics.GetMetricsStamp().QueuedFiles)

	<-f.fileQueue
	f.metrics.DecQueuedFiles()
	f.scanFiles()
	assert.Equal(t, 1, f.metrics.GetMetricsStamp().QueuedFiles)
	assert.Equal(t, 2, f.metrics.GetMetricsStamp().FilesDiscovered)
}

func TestForwarder_TailsAppendedLines(t *testing.T) {
	factory := &testutils.MockLoggerFactory{}
	other := &testutils.MockLoggerFactory{}
	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "checkout.log")
	require.NoError(t, os.WriteFile(file, []byte("existing line\n"), 0644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f := NewForwarder(ctx, makeTestConfig(tempDir), factory, other)
	f.Start()
	defer f.Stop()

	assert.Eventually(t, func() bool {
		return f.Metrics().FilesTailed == 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	appendLines(t, file, "l1", "   ", "l2")

	assert.Eventually(t, func() bool {
		l := factory.Get("checkout")
		return l != nil && len(l.GetEvents()) >= 2
	}, 3*time.Second, 50*time.Millisecond)

	events := factory.Get("checkout").GetEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "l1", events[0].Message)
	assert.Equal(t, "l2", events[1].Message)
	assert.Equal(t, logging.LevelInformation, events[0].Level)

	assert.Eventually(t, func() bool {
		l := other.Get("checkout")
		return l != nil && len(l.GetEvents()) == 2
	}, time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, f.Metrics().LinesForwarded)
}

func TestForwarder_ReleasesIdleFiles(t *testing.T) {
	factory := &testutils.MockLoggerFactory{}
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "quiet.log"), nil, 0644))

	config := makeTestConfig(tempDir)
	config.Workers = 1
	config.ScanInterval = 50 * time.Millisecond
	config.FileIdleTimeout = 10 * time.Millisecond

	f := NewForwarder(context.Background(), config, factory)
	f.Start()
	defer f.Stop()

	// the idle check runs once a second; a released file is picked up again
	assert.Eventually(t, func() bool {
		return f.Metrics().FilesTailed >= 2
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, f.Metrics().FilesDiscovered)
}

func TestForwarder_ResumesReleasedFileAtSavedOffset(t *testing.T) {
	factory := &testutils.MockLoggerFactory{}
	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "billing.log")
	require.NoError(t, os.WriteFile(file, []byte("old line\n"), 0644))

	config := makeTestConfig(tempDir)
	config.Workers = 1
	config.ScanInterval = 300 * time.Millisecond
	config.FileIdleTimeout = 10 * time.Millisecond

	f := NewForwarder(context.Background(), config, factory)
	f.Start()
	defer f.Stop()

	// wait for the first tail to go idle and hand the file back
	assert.Eventually(t, func() bool {
		m := f.Metrics()
		return m.FilesTailed == 1 && m.WorkersBusy == 0
	}, 5*time.Second, 5*time.Millisecond)

	appendLines(t, file, "written-while-released")

	assert.Eventually(t, func() bool {
		l := factory.Get("billing")
		return l != nil && len(l.GetEvents()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	events := factory.Get("billing").GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "written-while-released", events[0].Message)
	assert.GreaterOrEqual(t, f.Metrics().FilesTailed, 2)
}

func TestStartLocation(t *testing.T) {
	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "a.log")
	require.NoError(t, os.WriteFile(file, []byte("0123456789\n"), 0644))

	f := NewForwarder(context.TODO(), makeTestConfig(tempDir))

	loc := f.startLocation(file)
	assert.Equal(t, io.SeekEnd, loc.Whence)

	f.saveOffset(file, 4)
	loc = f.startLocation(file)
	assert.Equal(t, io.SeekStart, loc.Whence)
	assert.Equal(t, int64(4), loc.Offset)

	// the saved offset is used once
	assert.Equal(t, io.SeekEnd, f.startLocation(file).Whence)

	// truncated since release
	f.saveOffset(file, 1000)
	loc = f.startLocation(file)
	assert.Equal(t, io.SeekStart, loc.Whence)
	assert.Equal(t, int64(0), loc.Offset)
}

func TestScanFiles_QueueFullWarningReportsUsage(t *testing.T) {
	tempDir := t.TempDir()
	_ = os.WriteFile(filepath.Join(tempDir, "a.log"), nil, 0644)
	_ = os.WriteFile(filepath.Join(tempDir, "b.log"), nil, 0644)

	config := makeTestConfig(tempDir)
	config.FileQueueSize = 1
	f := NewForwarder(context.TODO(), config, &testutils.MockLoggerFactory{})

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	f.scanFiles()

	assert.Contains(t, buf.String(), "File queue full")
	assert.Contains(t, buf.String(), "queue_usage=1")
}
