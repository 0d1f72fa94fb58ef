// Package task supervises the long running goroutines of the scheduler and the
// serial transport: dispatch loops, result sweepers and port readers.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-tempsim/logger"
)

// ErrStopped is returned when a task is started on a stopped Manager.
var ErrStopped = errors.New("task: manager stopped")

// LoopFunc is one iteration of a looping task. Returning false ends the task.
type LoopFunc func(ctx context.Context) bool

// Manager starts named goroutines under a shared context and waits for them.
//
//	mgr := task.NewManager(ctx, logger.GetLogger())
//	_ = mgr.StartInterval("sweeper", sweep, time.Second, false)
//	...
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx    context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logger.Logger
	count   atomic.Int32
	tickers sync.Map     // map[string]*time.Ticker
	mu      sync.RWMutex // protects ctx and cancel
	taskMu  sync.RWMutex // blocks task creation during Wait
}

// NewManager creates a Manager whose tasks stop when ctx is done or Stop is called.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	if l == nil {
		l = logger.GetLogger()
	}
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by the running tasks.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Go runs fn once in a new goroutine.
func (mgr *Manager) Go(name string, fn func(ctx context.Context)) error {
	mgr.logger.Debug("start task", "name", name)

	ctx, err := mgr.begin(name)
	if err != nil {
		return err
	}

	go func() {
		defer mgr.end(name)
		mgr.callWithRecover(name, func() bool {
			fn(ctx)
			return false
		})
	}()

	return nil
}

// Start runs fn repeatedly until it returns false or the manager stops.
func (mgr *Manager) Start(name string, fn LoopFunc) error {
	mgr.logger.Debug("start loop task", "name", name)

	ctx, err := mgr.begin(name)
	if err != nil {
		return err
	}

	go func() {
		defer mgr.end(name)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if !mgr.callWithRecover(name, func() bool { return fn(ctx) }) {
					return
				}
			}
		}
	}()

	return nil
}

// StartInterval runs fn every interval until it returns false or the manager stops.
// When runNow is true fn also runs once immediately, on the task goroutine.
// Ticks that arrive while fn is still running are dropped.
func (mgr *Manager) StartInterval(name string, fn LoopFunc, interval time.Duration, runNow bool) error {
	mgr.logger.Debug("start interval task", "name", name, "interval", interval, "runNow", runNow)

	if interval <= 0 {
		return fmt.Errorf("task: invalid interval %v for %s", interval, name)
	}

	ticker := time.NewTicker(interval)
	if _, loaded := mgr.tickers.LoadOrStore(name, ticker); loaded {
		ticker.Stop()
		return fmt.Errorf("task: interval task %s already exists", name)
	}
	cleanup := func() {
		ticker.Stop()
		mgr.tickers.CompareAndDelete(name, ticker)
	}

	ctx, err := mgr.begin(name)
	if err != nil {
		cleanup()
		return err
	}

	go func() {
		defer mgr.end(name)
		defer cleanup()

		if runNow && !mgr.callWithRecover(name, func() bool { return fn(ctx) }) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !mgr.callWithRecover(name, func() bool { return fn(ctx) }) {
					return
				}
			}
		}
	}()

	return nil
}

// Stop signals every running task to terminate.
func (mgr *Manager) Stop() {
	mgr.tickers.Range(func(_, value any) bool {
		if ticker, ok := value.(*time.Ticker); ok {
			ticker.Stop()
		}

		return true
	})

	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait blocks until every task has returned, then re-arms the manager so new
// tasks can be started again.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of running tasks.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) begin(name string) (context.Context, error) {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	ctx := mgr.Context()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: cannot start %s", ErrStopped, name)
	default:
	}

	mgr.wg.Add(1)
	mgr.count.Add(1)

	return ctx, nil
}

func (mgr *Manager) end(name string) {
	mgr.count.Add(-1)
	mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
	mgr.wg.Done()
}

func (mgr *Manager) callWithRecover(name string, fn func() bool) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			cont = false
		}
	}()

	return fn()
}
