package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
)

var ErrInvalidConfig = errors.New("invalid batch config")

// Engine accumulates entries and hands them to a sink when either MaxCount
// entries are buffered or MaxInterval elapses with a non-empty buffer.
//
// The sink runs on the goroutine that triggered the flush (an Add caller or
// the timer). Sinks run one at a time in the order their batches were
// detached. The sink must not call back into Add.
type Engine struct {
	config logging.BatchConfig
	sink   logging.Sink

	batch      []logging.LogEntry
	batchMutex sync.Mutex
	// nextTicket is handed to each detached batch under batchMutex.
	nextTicket uint64

	// serving is the ticket whose batch may enter the sink next.
	serving   uint64
	turnMutex sync.Mutex
	turnCond  *sync.Cond

	ctx      context.Context
	stopCtx  context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewEngine validates config and starts the flush timer.
func NewEngine(ctx context.Context, config logging.BatchConfig, sink logging.Sink) (*Engine, error) {
	if config.MaxCount <= 0 {
		return nil, fmt.Errorf("%w: max count must be positive, got %d", ErrInvalidConfig, config.MaxCount)
	}
	if config.MaxInterval <= 0 {
		return nil, fmt.Errorf("%w: max interval must be positive, got %s", ErrInvalidConfig, config.MaxInterval)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: sink is nil", ErrInvalidConfig)
	}

	nCtx, cancel := context.WithCancel(ctx)
	e := &Engine{
		config:  config,
		sink:    sink,
		batch:   make([]logging.LogEntry, 0, config.MaxCount),
		ctx:     nCtx,
		stopCtx: cancel,
	}
	e.turnCond = sync.NewCond(&e.turnMutex)

	e.wg.Add(1)
	go e.batchTimer()

	return e, nil
}

// Add appends entry and flushes synchronously when the buffer reaches MaxCount.
func (e *Engine) Add(entry logging.LogEntry) {
	e.batchMutex.Lock()
	e.batch = append(e.batch, entry)
	if len(e.batch) < e.config.MaxCount {
		e.batchMutex.Unlock()
		return
	}
	e.flushLocked()
}

// Flush delivers the current buffer if it is non-empty.
func (e *Engine) Flush() {
	e.batchMutex.Lock()
	e.flushLocked()
}

// Len returns the number of buffered entries.
func (e *Engine) Len() int {
	e.batchMutex.Lock()
	defer e.batchMutex.Unlock()
	return len(e.batch)
}

// Stop halts the timer and flushes whatever is left. Entries added after
// Stop returns are never delivered.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.stopCtx()
		e.wg.Wait()
		e.Flush()
	})
}

// flushLocked must be called with batchMutex held; it always releases it.
// Only the goroutine that detached a batch waits for earlier sinks to finish.
func (e *Engine) flushLocked() {
	if len(e.batch) == 0 {
		e.batchMutex.Unlock()
		return
	}

	batchToSend := e.batch
	e.batch = make([]logging.LogEntry, 0, e.config.MaxCount)
	ticket := e.nextTicket
	e.nextTicket++
	e.batchMutex.Unlock()

	e.turnMutex.Lock()
	for e.serving != ticket {
		e.turnCond.Wait()
	}
	e.turnMutex.Unlock()

	defer func() {
		e.turnMutex.Lock()
		e.serving++
		e.turnCond.Broadcast()
		e.turnMutex.Unlock()
	}()

	e.sink(batchToSend)
}

func (e *Engine) batchTimer() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.MaxInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Flush()
		case <-e.ctx.Done():
			return
		}
	}
}
