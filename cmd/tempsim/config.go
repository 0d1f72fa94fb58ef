package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-tempsim/device"
	"github.com/arloliu/go-tempsim/discovery"
	"github.com/arloliu/go-tempsim/internal/queue"
	"github.com/arloliu/go-tempsim/scheduler"
	"github.com/arloliu/go-tempsim/transport"
)

// Config is the tempsim configuration file.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Ports     []string        `yaml:"ports"` // discovery candidates; empty probes every port
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

type SerialConfig struct {
	BaudRate    int           `yaml:"baud_rate"`
	Parity      string        `yaml:"parity"` // none, odd or even
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type SchedulerConfig struct {
	Policy       string        `yaml:"policy"` // queue or stack
	MaxAttempts  int           `yaml:"max_attempts"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	AwaitTimeout time.Duration `yaml:"await_timeout"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
}

type DiscoveryConfig struct {
	PerPortTimeout time.Duration `yaml:"per_port_timeout"`
}

// DefaultConfig returns the instrument defaults.
func DefaultConfig() *Config {
	p := device.TempSimProfile()

	return &Config{
		Serial: SerialConfig{
			BaudRate:    p.Mode.BaudRate,
			Parity:      p.Mode.Parity.String(),
			ReadTimeout: 10 * time.Millisecond,
		},
		Scheduler: SchedulerConfig{
			Policy:       queue.FIFO.String(),
			MaxAttempts:  p.MaxAttempts,
			ReadTimeout:  p.ReadTimeout,
			AwaitTimeout: p.AwaitTimeout,
			SettleDelay:  p.SettleDelay,
		},
		Discovery: DiscoveryConfig{
			PerPortTimeout: discovery.DefaultPerPortTimeout,
		},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the values the option constructors do not.
func (c *Config) Validate() error {
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Serial.BaudRate)
	}
	if _, err := transport.ParseParity(c.Serial.Parity); err != nil {
		return err
	}
	if _, err := queue.ParsePolicy(c.Scheduler.Policy); err != nil {
		return err
	}
	if c.Scheduler.AwaitTimeout < 0 || c.Scheduler.SettleDelay < 0 {
		return errors.New("negative await timeout or settle delay")
	}

	return nil
}

// Mode returns the serial line settings.
func (c *Config) Mode() transport.Mode {
	parity, _ := transport.ParseParity(c.Serial.Parity)

	return transport.Mode{BaudRate: c.Serial.BaudRate, Parity: parity}
}

// Profile returns the instrument profile with the configured timing.
func (c *Config) Profile() device.Profile {
	p := device.TempSimProfile()
	p.Mode = c.Mode()
	p.MaxAttempts = c.Scheduler.MaxAttempts
	p.ReadTimeout = c.Scheduler.ReadTimeout
	p.AwaitTimeout = c.Scheduler.AwaitTimeout
	p.SettleDelay = c.Scheduler.SettleDelay

	return p
}

// SchedulerOptions returns the scheduler options for the configured policy.
func (c *Config) SchedulerOptions() ([]scheduler.Option, error) {
	policy, err := queue.ParsePolicy(c.Scheduler.Policy)
	if err != nil {
		return nil, err
	}

	return []scheduler.Option{
		scheduler.WithPolicy(policy),
		scheduler.WithDefaultMaxAttempts(c.Scheduler.MaxAttempts),
		scheduler.WithDefaultReadTimeout(c.Scheduler.ReadTimeout),
	}, nil
}

// DiscoveryOptions returns the discovery options.
func (c *Config) DiscoveryOptions() []discovery.Option {
	return []discovery.Option{
		discovery.WithPerPortTimeout(c.Discovery.PerPortTimeout),
	}
}
