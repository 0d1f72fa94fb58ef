package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-tempsim/frame"
	"github.com/arloliu/go-tempsim/internal/pool"
	"github.com/arloliu/go-tempsim/internal/queue"
	"github.com/arloliu/go-tempsim/internal/task"
	"github.com/arloliu/go-tempsim/logger"
	"github.com/arloliu/go-tempsim/transport"
)

// job is a request owned by the scheduler from Submit until its result is stored.
type job struct {
	id       RequestID
	req      Request
	attempts int
	entry    *entry
}

// entry is a row of the result table. result is written once, before done is closed.
type entry struct {
	done   chan struct{}
	result Result
}

func (e *entry) finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Scheduler serializes requests onto one port of a transport.
type Scheduler struct {
	cfg     *Config
	tr      transport.Transport
	port    string
	logger  logger.Logger
	tasks   *task.Manager
	buffer  queue.Buffer[*job]
	results *xsync.MapOf[RequestID, *entry]
	metrics Metrics
	state   atomic.Int32

	mu      sync.Mutex // serializes Submit against Close
	started bool
	closed  bool
}

// New creates a Scheduler for port on tr. The worker does not run until Start.
func New(ctx context.Context, tr transport.Transport, port string, opts ...Option) (*Scheduler, error) {
	if tr == nil {
		return nil, errors.New("scheduler: nil transport")
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	l := cfg.logger.With("component", "scheduler", "port", port)

	return &Scheduler{
		cfg:     cfg,
		tr:      tr,
		port:    port,
		logger:  l,
		tasks:   task.NewManager(ctx, l),
		buffer:  queue.New[*job](cfg.policy),
		results: xsync.NewMapOf[RequestID, *entry](),
	}, nil
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() *Config { return s.cfg }

// Port returns the port the scheduler transmits on.
func (s *Scheduler) Port() string { return s.port }

// GetMetrics returns the live metrics.
func (s *Scheduler) GetMetrics() *Metrics { return &s.metrics }

// State returns the current worker state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Pending returns the number of buffered requests, not counting the one in flight.
func (s *Scheduler) Pending() int { return s.buffer.Len() }

// Start launches the worker and, when a result TTL is set, the result sweeper.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	if err := s.tasks.StartInterval("dispatch", s.dispatch, s.cfg.pollInterval, true); err != nil {
		return err
	}
	if err := s.tasks.Go("drain", s.drainOnStop); err != nil {
		s.tasks.Stop()
		s.tasks.Wait()

		return err
	}

	if ttl := s.cfg.resultTTL; ttl > 0 {
		if err := s.tasks.StartInterval("sweeper", s.sweep, sweepInterval(ttl), false); err != nil {
			s.tasks.Stop()
			s.tasks.Wait()

			return err
		}
	}
	s.started = true
	s.logger.Debug("scheduler started", "policy", s.cfg.policy.String())

	return nil
}

// Close stops the worker. A request in flight is failed with ErrSchedulerClosed at
// its next wait; buffered requests are failed the same way without being sent.
// Canceling the context given to New has the same effect.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.tasks.Stop()
	s.tasks.Wait()

	s.failBuffered("scheduler closed before transmission")
	s.setState(uuid.Nil, StateIdle)
	s.logger.Debug("scheduler closed")

	return nil
}

// Submit validates req and buffers it. Invalid requests are rejected with
// ErrInvalidRequest and never transmitted. Once the scheduler is closed, or the
// context given to New is done, Submit fails with ErrSchedulerClosed.
func (s *Scheduler) Submit(req Request) (*Handle, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.MaxAttempts == 0 {
		req.MaxAttempts = s.cfg.maxAttempts
	}
	if req.ReadTimeout == 0 {
		req.ReadTimeout = s.cfg.readTimeout
	}
	req.Payload = slices.Clone(req.Payload)

	j := &job{
		id:    uuid.New(),
		req:   req,
		entry: &entry{done: make(chan struct{})},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.tasks.Context().Err() != nil {
		return nil, ErrSchedulerClosed
	}

	s.results.Store(j.id, j.entry)
	s.buffer.Push(j)
	s.metrics.incSubmitted()
	s.logger.Debug("request submitted", "requestID", j.id, "label", req.Label, "pending", s.buffer.Len())

	return &Handle{id: j.id, done: j.entry.done}, nil
}

// Await blocks until the request behind h finishes or ctx is done, and consumes
// its result. The returned error reports a failed wait only; the request's own
// failure is carried in Result.Err.
//
// When ctx ends first the request keeps running and its result can be picked up
// later with Claim.
func (s *Scheduler) Await(ctx context.Context, h *Handle) (Result, error) {
	e, ok := s.results.Load(h.id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownRequest, h.id)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return Result{RequestID: h.id}, fmt.Errorf("%w: %w", ErrAwaitTimeout, ctx.Err())
	}

	if _, ok := s.results.LoadAndDelete(h.id); !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownRequest, h.id)
	}

	return e.result, nil
}

// AwaitTimeout is Await bounded by d.
func (s *Scheduler) AwaitTimeout(h *Handle, d time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	return s.Await(ctx, h)
}

// Claim consumes the result of a finished request without blocking. ok is false
// when the request is still running, was already consumed or was evicted.
func (s *Scheduler) Claim(id RequestID) (Result, bool) {
	e, ok := s.results.Load(id)
	if !ok || !e.finished() {
		return Result{}, false
	}

	if _, ok := s.results.LoadAndDelete(id); !ok {
		return Result{}, false
	}

	return e.result, true
}

// Do submits req and awaits its result. The error is the submit or wait error,
// or else the request's own Result.Err.
func (s *Scheduler) Do(ctx context.Context, req Request) (Result, error) {
	h, err := s.Submit(req)
	if err != nil {
		return Result{}, err
	}

	res, err := s.Await(ctx, h)
	if err != nil {
		return res, err
	}

	return res, res.Err
}

// dispatch is the worker body: it drains the buffer one request at a time.
func (s *Scheduler) dispatch(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}

		j, ok := s.buffer.Pop()
		if !ok {
			return true
		}

		s.execute(ctx, j)
	}
}

// drainOnStop waits for the worker context to end and fails whatever is still
// buffered, so a canceled parent context leaves no request without a result.
func (s *Scheduler) drainOnStop(ctx context.Context) {
	<-ctx.Done()

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.failBuffered("scheduler stopped before transmission"); n > 0 {
		s.logger.Debug("failed buffered requests", "count", n, "cause", ctx.Err())
	}
}

// failBuffered completes every buffered request as canceled.
func (s *Scheduler) failBuffered(reason string) int {
	jobs := s.buffer.Drain()
	for _, j := range jobs {
		s.complete(j, Result{
			Outcome: OutcomeCanceled,
			Reason:  reason,
			Err:     ErrSchedulerClosed,
		})
	}

	return len(jobs)
}

func (s *Scheduler) execute(ctx context.Context, j *job) {
	l := s.logger.With("requestID", j.id, "label", j.req.Label)
	s.setState(j.id, StateDispatching)
	defer s.setState(j.id, StateIdle)

	var lastErr error
	var received []byte

	for attempt := 1; attempt <= j.req.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			s.complete(j, Result{
				Outcome:  OutcomeCanceled,
				Received: received,
				Reason:   "scheduler closed between attempts",
				Err:      ErrSchedulerClosed,
			})

			return
		}

		j.attempts = attempt
		s.metrics.incAttempt(attempt)
		if attempt > 1 {
			s.setState(j.id, StateRetrying)
		}

		if s.cfg.flushBeforeSend {
			if err := s.tr.Flush(s.port); err != nil {
				l.Debug("flush failed", "error", err)
			}
		}

		s.setState(j.id, StateAwaitingTransmission)
		if err := s.tr.Send(s.port, j.req.Payload); err != nil {
			l.Error("transmission failed", "attempt", attempt, "error", err)
			s.complete(j, Result{
				Outcome: OutcomeTransportFailure,
				Reason:  "transport failure: " + err.Error(),
				Err:     err,
			})

			return
		}

		s.setState(j.id, StateAwaitingResponse)
		var m *frame.Match
		var err error
		received, m, err = s.readResponse(ctx, j.req)
		switch {
		case m != nil:
			s.setState(j.id, StateMatched)
			l.Debug("request matched", "attempt", attempt, "frame", m.Frame.String())
			s.complete(j, Result{
				Outcome:  OutcomeMatched,
				Matched:  true,
				Match:    m,
				Received: received,
				Reason:   "matched",
			})

			return

		case ctx.Err() != nil:
			s.complete(j, Result{
				Outcome:  OutcomeCanceled,
				Received: received,
				Reason:   "scheduler closed while awaiting response",
				Err:      ErrSchedulerClosed,
			})

			return

		case err != nil:
			l.Error("receive failed", "attempt", attempt, "error", err)
			s.complete(j, Result{
				Outcome:  OutcomeTransportFailure,
				Received: received,
				Reason:   "transport failure: " + err.Error(),
				Err:      err,
			})

			return

		case len(received) == 0:
			lastErr = ErrReadTimeout
		default:
			lastErr = ErrMismatch
		}

		l.Debug("attempt failed", "attempt", attempt, "maxAttempts", j.req.MaxAttempts,
			"reason", lastErr, "received", frame.Frame(received).String())
	}

	s.setState(j.id, StateExhausted)
	l.Warn("request exhausted", "attempts", j.attempts, "reason", lastErr)
	s.complete(j, Result{
		Outcome:  OutcomeExhausted,
		Received: received,
		Reason:   fmt.Sprintf("no matching response after %d attempts: %v", j.attempts, lastErr),
		Err:      fmt.Errorf("%w after %d attempts: %w", ErrExhausted, j.attempts, lastErr),
	})
}

// readResponse polls the port for up to the request's read timeout, returning as
// soon as the accumulated bytes match.
func (s *Scheduler) readResponse(ctx context.Context, req Request) ([]byte, *frame.Match, error) {
	deadline := time.Now().Add(req.ReadTimeout)
	interval := s.cfg.readPollInterval
	if interval <= 0 || interval > req.ReadTimeout {
		interval = req.ReadTimeout
		if err := pool.Sleep(ctx, interval); err != nil {
			return nil, nil, nil
		}
	}

	var acc []byte
	for {
		data, err := s.tr.Receive(s.port)
		acc = append(acc, data...)
		if err != nil {
			return acc, nil, err
		}

		if len(acc) > 0 {
			if m, ok := req.Pattern.Match(acc); ok {
				return acc, m, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return acc, nil, nil
		}

		if err := pool.Sleep(ctx, min(interval, remaining)); err != nil {
			return acc, nil, nil
		}
	}
}

func (s *Scheduler) complete(j *job, res Result) {
	res.RequestID = j.id
	res.Attempts = j.attempts
	res.Completed = time.Now()

	j.entry.result = res
	s.metrics.finish(res.Outcome)
	close(j.entry.done)
}

func (s *Scheduler) setState(id RequestID, to State) {
	from := State(s.state.Swap(int32(to)))
	if s.cfg.stateHook != nil && from != to {
		s.cfg.stateHook(id, from, to)
	}
}

// sweep evicts results that finished more than the TTL ago and were never claimed.
func (s *Scheduler) sweep(_ context.Context) bool {
	cutoff := time.Now().Add(-s.cfg.resultTTL)
	s.results.Range(func(id RequestID, e *entry) bool {
		if e.finished() && e.result.Completed.Before(cutoff) {
			if _, ok := s.results.LoadAndDelete(id); ok {
				s.metrics.incEvicted()
				s.logger.Debug("evicted unclaimed result", "requestID", id, "outcome", e.result.Outcome.String())
			}
		}

		return true
	})

	return true
}

func sweepInterval(ttl time.Duration) time.Duration {
	return max(ttl/2, MinPollInterval)
}
