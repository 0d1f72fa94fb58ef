package discovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-tempsim/logger"
	"github.com/arloliu/go-tempsim/transport"
)

// Default values.
const (
	DefaultPerPortTimeout = time.Second
	DefaultPollInterval   = 10 * time.Millisecond
)

// Range limits.
const (
	MinPerPortTimeout = 10 * time.Millisecond
	MaxPerPortTimeout = time.Minute
)

type config struct {
	perPortTimeout time.Duration
	readWindow     time.Duration // zero means half of perPortTimeout
	pollInterval   time.Duration
	mode           transport.Mode
	logger         logger.Logger
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		perPortTimeout: DefaultPerPortTimeout,
		pollInterval:   DefaultPollInterval,
		mode:           transport.DefaultMode,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *config) window() time.Duration {
	if cfg.readWindow > 0 {
		return cfg.readWindow
	}

	return cfg.perPortTimeout / 2
}

// Option is a functional option for Discover.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithPerPortTimeout bounds how long opening a candidate port may take. The default
// read window is half of it.
func WithPerPortTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < MinPerPortTimeout || d > MaxPerPortTimeout {
			return fmt.Errorf("discovery: per-port timeout %v out of range [%v, %v]", d, MinPerPortTimeout, MaxPerPortTimeout)
		}
		cfg.perPortTimeout = d

		return nil
	})
}

// WithReadWindow sets how long to wait for the probe reply on each port.
func WithReadWindow(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("discovery: read window must be positive")
		}
		cfg.readWindow = d

		return nil
	})
}

// WithPollInterval sets how often a candidate port is read during the read window.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("discovery: poll interval must be positive")
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithMode sets the line settings used to open candidates.
func WithMode(m transport.Mode) Option {
	return optFunc(func(cfg *config) error {
		if m.BaudRate <= 0 {
			return fmt.Errorf("discovery: invalid baud rate %d", m.BaudRate)
		}
		cfg.mode = m

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("discovery: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
