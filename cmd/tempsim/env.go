package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/arloliu/go-tempsim/device"
	"github.com/arloliu/go-tempsim/logger"
	"github.com/arloliu/go-tempsim/transport"
	"github.com/arloliu/go-tempsim/transport/serialport"
	"github.com/arloliu/go-tempsim/transport/simport"
)

// Demo port names. Only demoDevicePort answers.
const (
	demoSilentPort = "/dev/ttyDEMO0"
	demoDevicePort = "/dev/ttyDEMO1"
	demoFirmware   = "INV-Cappo"
)

type rootFlags struct {
	configPath string
	logLevel   string
	demo       bool
	port       string
	policy     string
}

// env is what every command runs against.
type env struct {
	cfg    *Config
	tr     transport.Transport
	logger logger.Logger
	close  func()
}

func newEnv(ctx context.Context, flags *rootFlags) (*env, error) {
	level, ok := logger.ParseLevel(flags.logLevel)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", flags.logLevel)
	}
	l := logger.NewSlogWithWriter(os.Stderr, level, false)
	logger.SetLogger(l)

	cfg, err := LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.policy != "" {
		cfg.Scheduler.Policy = flags.policy
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	e := &env{cfg: cfg, logger: l, close: func() {}}

	if flags.demo {
		sim := device.NewSimulator(cfg.Profile(), demoFirmware)
		net := simport.New()
		net.AddPort(demoSilentPort, nil)
		net.AddPort(demoDevicePort, sim.Respond, simport.WithLatency(5*time.Millisecond))
		e.tr = net
		l.Info("using simulated instrument", "port", demoDevicePort)

		return e, nil
	}

	sp := serialport.New(ctx,
		serialport.WithReadTimeout(cfg.Serial.ReadTimeout),
		serialport.WithLogger(l),
	)
	e.tr = sp
	e.close = func() {
		if err := sp.Shutdown(); err != nil {
			l.Warn("serial shutdown failed", "error", err)
		}
	}

	return e, nil
}

// session connects a device session, through discovery unless a port was given.
func (e *env) session(ctx context.Context, flags *rootFlags) (*device.Session, error) {
	schedOpts, err := e.cfg.SchedulerOptions()
	if err != nil {
		return nil, err
	}

	sess, err := device.NewSession(ctx, e.tr,
		device.WithProfile(e.cfg.Profile()),
		device.WithSchedulerOptions(schedOpts...),
		device.WithDiscoveryOptions(e.cfg.DiscoveryOptions()...),
		device.WithLogger(e.logger),
	)
	if err != nil {
		return nil, err
	}

	if flags.port != "" {
		if err := sess.ConnectPort(flags.port); err != nil {
			return nil, fmt.Errorf("open %s: %w", flags.port, err)
		}

		return sess, nil
	}

	if _, err := sess.Connect(ctx, e.cfg.Ports...); err != nil {
		return nil, err
	}

	return sess, nil
}

// runSession runs fn against a connected session and tears everything down.
func runSession(ctx context.Context, flags *rootFlags, fn func(ctx context.Context, sess *device.Session) error) error {
	e, err := newEnv(ctx, flags)
	if err != nil {
		return err
	}
	defer e.close()

	sess, err := e.session(ctx, flags)
	if err != nil {
		return err
	}

	return errors.Join(fn(ctx, sess), sess.Close())
}
