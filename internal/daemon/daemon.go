package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging/format"
)

// Forwarder tails *.log files under a root directory and hands every new
// line to the loggers of each configured factory.
type Forwarder struct {
	config    Config
	factories []logging.LoggerFactory
	fileQueue chan string
	workersWg sync.WaitGroup
	scannerWg sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	metrics   *ForwarderMetrics

	filesMutex sync.Mutex
	seenFiles  map[string]struct{}
	// activeFiles holds files that are queued or being tailed.
	activeFiles map[string]struct{}
	// offsets holds where idle-released files stopped, so a re-tail resumes there.
	offsets map[string]int64

	stopOnce sync.Once
}

type Config struct {
	LogRootPath   string
	ScanInterval  time.Duration
	Workers       int
	FileQueueSize int
	// If > 0, stop tailing a file after this period without new lines
	FileIdleTimeout time.Duration
	// Level is attached to every forwarded line.
	Level logging.Level
}

func NewForwarder(ctx context.Context, config Config, factories ...logging.LoggerFactory) *Forwarder {
	nCtx, cancel := context.WithCancel(ctx)

	return &Forwarder{
		config:    config,
		factories: factories,
		fileQueue: make(chan string, config.FileQueueSize),
		ctx:       nCtx,
		cancel:    cancel,
		metrics: &ForwarderMetrics{
			FilesQueueCapacity: config.FileQueueSize,
		},
		seenFiles:   make(map[string]struct{}),
		activeFiles: make(map[string]struct{}),
		offsets:     make(map[string]int64),
	}
}

func (f *Forwarder) Start() {
	slog.Info("Starting file forwarder",
		"root", f.config.LogRootPath, "workers", f.config.Workers, "queue_size", f.config.FileQueueSize)

	for i := 0; i < f.config.Workers; i++ {
		f.workersWg.Add(1)
		go f.worker(i)
	}

	f.scannerWg.Add(1)
	go f.scanner()
}

func (f *Forwarder) Stop() {
	f.stopOnce.Do(func() {
		slog.Info("Stopping file forwarder")
		f.cancel()

		f.scannerWg.Wait()
		close(f.fileQueue)
		f.workersWg.Wait()

		m := f.metrics.GetMetricsStamp()
		slog.Info("File forwarder stopped",
			"files_tailed", m.FilesTailed, "files_failed", m.FilesFailed, "lines_forwarded", m.LinesForwarded)
	})
}

func (f *Forwarder) Metrics() ForwarderMetrics {
	return f.metrics.GetMetricsStamp()
}

func (f *Forwarder) worker(id int) {
	defer f.workersWg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Forwarder worker panicked", "worker", id, "panic", r)
		}
	}()

	for {
		select {
		case filePath, ok := <-f.fileQueue:
			if !ok {
				return
			}
			f.metrics.DecQueuedFiles()
			f.metrics.IncWorkersBusy()
			f.tailFile(filePath)
			f.metrics.DecWorkersBusy()
			f.release(filePath)

		case <-f.ctx.Done():
			return
		}
	}
}

func (f *Forwarder) tailFile(filePath string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tailing panicked", "file", filePath, "panic", r)
			f.metrics.IncFilesFailed()
		}
	}()

	t, err := tail.TailFile(filePath, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: f.startLocation(filePath),
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		slog.Warn("Failed to tail file", "file", filePath, "error", err)
		f.metrics.IncFilesFailed()
		return
	}
	defer t.Cleanup()
	defer t.Stop()

	f.metrics.IncFilesTailed()
	loggers := f.loggersFor(filePath)

	checkTicker := time.NewTicker(time.Second)
	defer checkTicker.Stop()

	lastActivity := time.Now()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				slog.Warn("Error reading file", "file", filePath, "error", line.Err)
				continue
			}

			lastActivity = time.Now()
			if strings.TrimSpace(line.Text) == "" {
				continue
			}
			for _, l := range loggers {
				l.Log(f.config.Level, logging.EventID{}, line.Text, nil, format.Fallback)
			}
			f.metrics.IncLinesForwarded()

		case <-checkTicker.C:
			// wake up from line reading to check the idle timeout
			if f.config.FileIdleTimeout > 0 && time.Since(lastActivity) > f.config.FileIdleTimeout {
				offset, err := t.Tell()
				if err != nil {
					slog.Warn("Failed to read tail offset, file will resume from its end", "file", filePath, "error", err)
				} else {
					f.saveOffset(filePath, offset)
				}
				slog.Debug("Releasing idle file", "file", filePath, "offset", offset)
				return
			}
		case <-f.ctx.Done():
			return
		}
	}
}

// loggersFor resolves one logger per factory, using the file name as category.
func (f *Forwarder) loggersFor(filePath string) []logging.Logger {
	category := Category(filePath)
	loggers := make([]logging.Logger, 0, len(f.factories))
	for _, factory := range f.factories {
		loggers = append(loggers, factory.CreateLogger(category))
	}
	return loggers
}

// Category derives the logger category for a file: its base name without extension.
func Category(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (f *Forwarder) scanner() {
	defer f.scannerWg.Done()

	f.scanFiles()

	ticker := time.NewTicker(f.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.scanFiles()

		case <-f.ctx.Done():
			return
		}
	}
}

func (f *Forwarder) scanFiles() {
	files, err := f.discoverLogFiles()
	if err != nil {
		slog.Warn("Error discovering log files", "root", f.config.LogRootPath, "error", err)
		return
	}

	for _, file := range files {
		if !f.claim(file) {
			continue
		}

		select {
		case f.fileQueue <- file:
			f.metrics.IncQueuedFiles()
		case <-f.ctx.Done():
			f.release(file)
			return
		default:
			f.release(file)
			slog.Warn("File queue full, skipping file",
				"queue_usage", f.metrics.GetQueueUsage(), "capacity", cap(f.fileQueue), "file", file)
		}
	}
}

// claim marks file active and reports whether it was idle before.
func (f *Forwarder) claim(file string) bool {
	f.filesMutex.Lock()
	defer f.filesMutex.Unlock()

	if _, ok := f.seenFiles[file]; !ok {
		f.seenFiles[file] = struct{}{}
		f.metrics.IncFilesDiscovered()
	}
	if _, ok := f.activeFiles[file]; ok {
		return false
	}
	f.activeFiles[file] = struct{}{}
	return true
}

// startLocation resumes a previously released file at its saved offset.
// New files start at their end. A file shorter than its saved offset was
// truncated and is read from the start.
func (f *Forwarder) startLocation(file string) *tail.SeekInfo {
	f.filesMutex.Lock()
	offset, ok := f.offsets[file]
	delete(f.offsets, file)
	f.filesMutex.Unlock()

	if !ok {
		return &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	if info, err := os.Stat(file); err == nil && info.Size() < offset {
		offset = 0
	}
	return &tail.SeekInfo{Offset: offset, Whence: io.SeekStart}
}

func (f *Forwarder) saveOffset(file string, offset int64) {
	f.filesMutex.Lock()
	defer f.filesMutex.Unlock()
	f.offsets[file] = offset
}

func (f *Forwarder) release(file string) {
	f.filesMutex.Lock()
	defer f.filesMutex.Unlock()
	delete(f.activeFiles, file)
}

func (f *Forwarder) discoverLogFiles() ([]string, error) {
	var logFiles []string

	err := filepath.Walk(f.config.LogRootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			slog.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".log") {
			logFiles = append(logFiles, path)
		}
		return nil
	})

	return logFiles, err
}
