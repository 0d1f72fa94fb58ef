package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-tempsim/internal/queue"
	"github.com/arloliu/go-tempsim/logger"
)

// Default values.
const (
	DefaultPollInterval     = 10 * time.Millisecond
	DefaultReadPollInterval = 10 * time.Millisecond
	DefaultMaxAttempts      = 10
	DefaultReadTimeout      = 100 * time.Millisecond
	DefaultResultTTL        = time.Minute
)

// Range limits.
const (
	MinPollInterval = time.Millisecond
	MaxPollInterval = 10 * time.Second

	MaxAttemptsLimit = 100

	MinReadTimeout = time.Millisecond
	MaxReadTimeout = time.Minute
)

// StateHook observes worker state transitions for a request.
type StateHook func(id RequestID, from, to State)

// Config holds the settings of a Scheduler.
type Config struct {
	policy           queue.Policy
	pollInterval     time.Duration
	readPollInterval time.Duration
	maxAttempts      int
	readTimeout      time.Duration
	resultTTL        time.Duration
	flushBeforeSend  bool
	stateHook        StateHook
	logger           logger.Logger
}

func newConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		policy:           queue.FIFO,
		pollInterval:     DefaultPollInterval,
		readPollInterval: DefaultReadPollInterval,
		maxAttempts:      DefaultMaxAttempts,
		readTimeout:      DefaultReadTimeout,
		resultTTL:        DefaultResultTTL,
		flushBeforeSend:  true,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Policy returns the buffer ordering policy.
func (cfg *Config) Policy() queue.Policy { return cfg.policy }

// PollInterval returns how often an idle worker checks the buffer.
func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

// ReadPollInterval returns how often the transport is read while awaiting a reply.
func (cfg *Config) ReadPollInterval() time.Duration { return cfg.readPollInterval }

// MaxAttempts returns the attempt budget used when a Request leaves it at zero.
func (cfg *Config) MaxAttempts() int { return cfg.maxAttempts }

// ReadTimeout returns the per-attempt read timeout used when a Request leaves it at zero.
func (cfg *Config) ReadTimeout() time.Duration { return cfg.readTimeout }

// ResultTTL returns how long an unclaimed result is retained. Zero keeps results forever.
func (cfg *Config) ResultTTL() time.Duration { return cfg.resultTTL }

// FlushBeforeSend reports whether stale input is discarded before each transmission.
func (cfg *Config) FlushBeforeSend() bool { return cfg.flushBeforeSend }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a Scheduler.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithPolicy selects FIFO (queue) or LIFO (stack) service order.
func WithPolicy(p queue.Policy) Option {
	return optFunc(func(cfg *Config) error {
		if p != queue.FIFO && p != queue.LIFO {
			return fmt.Errorf("scheduler: unknown policy %v", p)
		}
		cfg.policy = p

		return nil
	})
}

// WithPollInterval sets how often an idle worker checks the buffer.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("scheduler: poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithReadPollInterval sets how often the port is read while awaiting a reply.
// Zero disables polling: the port is read once, after the full read timeout.
func WithReadPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return errors.New("scheduler: read poll interval must not be negative")
		}
		cfg.readPollInterval = d

		return nil
	})
}

// WithDefaultMaxAttempts sets the attempt budget for requests that do not set one.
func WithDefaultMaxAttempts(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxAttemptsLimit {
			return fmt.Errorf("scheduler: max attempts %d out of range [1, %d]", n, MaxAttemptsLimit)
		}
		cfg.maxAttempts = n

		return nil
	})
}

// WithDefaultReadTimeout sets the per-attempt read timeout for requests that do not set one.
func WithDefaultReadTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("scheduler: read timeout %v out of range [%v, %v]", d, MinReadTimeout, MaxReadTimeout)
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithResultTTL sets how long a finished but unclaimed result is kept before the
// sweeper evicts it. Zero disables eviction.
func WithResultTTL(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return errors.New("scheduler: result TTL must not be negative")
		}
		cfg.resultTTL = d

		return nil
	})
}

// WithFlushBeforeSend controls whether stale input is discarded before each
// transmission. Enabled by default.
func WithFlushBeforeSend(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.flushBeforeSend = enabled
		return nil
	})
}

// WithStateHook installs a hook called on every worker state transition.
// The hook runs on the worker goroutine and must not block.
func WithStateHook(hook StateHook) Option {
	return optFunc(func(cfg *Config) error {
		cfg.stateHook = hook
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("scheduler: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
