package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/arloliu/go-tempsim/discovery"
	"github.com/arloliu/go-tempsim/frame"
	"github.com/arloliu/go-tempsim/internal/pool"
	"github.com/arloliu/go-tempsim/logger"
	"github.com/arloliu/go-tempsim/scheduler"
	"github.com/arloliu/go-tempsim/transport"
)

var (
	// ErrNotConnected is returned by operations issued before Connect.
	ErrNotConnected = errors.New("device: not connected")
	// ErrAlreadyConnected is returned by Connect on a bound session.
	ErrAlreadyConnected = errors.New("device: already connected")
	// ErrUnexpectedReply is returned when a matched reply carries unusable data.
	ErrUnexpectedReply = errors.New("device: unexpected reply")
)

// Option configures a Session.
type Option func(*Session)

// WithProfile replaces the default TempSimProfile.
func WithProfile(p Profile) Option {
	return func(s *Session) { s.profile = p }
}

// WithSchedulerOptions passes options to the scheduler created by Connect.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(s *Session) { s.schedOpts = append(s.schedOpts, opts...) }
}

// WithDiscoveryOptions passes options to discovery.
func WithDiscoveryOptions(opts ...discovery.Option) Option {
	return func(s *Session) { s.discOpts = append(s.discOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Reading is the result of ReqInputValue. Temperatures are in degrees.
type Reading struct {
	// Sensor is the configured sensor type, empty when the code is unknown.
	Sensor     Sensor
	SensorCode uint16
	Input      float64
	Ambient    float64
	// Uncompensated is Input minus Ambient.
	Uncompensated float64
}

// Session runs instrument operations over a transport.
type Session struct {
	ctx       context.Context
	tr        transport.Transport
	profile   Profile
	logger    logger.Logger
	schedOpts []scheduler.Option
	discOpts  []discovery.Option

	mu           sync.Mutex
	sched        *scheduler.Scheduler
	port         string
	firmware     string
	output       OutputConfig
	compensation bool // last compensation state acknowledged by the instrument
}

// NewSession creates an unbound Session. ctx bounds the lifetime of the
// scheduler started by Connect.
func NewSession(ctx context.Context, tr transport.Transport, opts ...Option) (*Session, error) {
	if tr == nil {
		return nil, errors.New("device: nil transport")
	}

	s := &Session{
		ctx:     ctx,
		tr:      tr,
		profile: TempSimProfile(),
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "device")

	return s, nil
}

// Profile returns the instrument profile.
func (s *Session) Profile() Profile { return s.profile }

// Port returns the bound port, or "" before Connect.
func (s *Session) Port() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.port
}

// Scheduler returns the scheduler serving the session, or nil before Connect.
func (s *Session) Scheduler() *scheduler.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sched
}

// Connect probes candidates (all transport ports when empty) with the
// identification request and binds to the first that answers. The firmware text
// carried by the reply is recorded.
func (s *Session) Connect(ctx context.Context, candidates ...string) (discovery.Result, error) {
	if s.Scheduler() != nil {
		return discovery.Result{}, ErrAlreadyConnected
	}

	probe := discovery.Probe{Request: s.profile.Probe(), Response: s.profile.ProbeResponse()}
	opts := append([]discovery.Option{
		discovery.WithMode(s.profile.Mode),
		discovery.WithLogger(s.logger),
	}, s.discOpts...)

	res, err := discovery.Discover(ctx, s.tr, candidates, probe, opts...)
	if err != nil {
		return res, err
	}

	if vendor, ok := res.Match.Named(VendorGroup); ok {
		s.SetFirmware(frame.Text(vendor))
	}

	if err := s.bind(res.Port); err != nil {
		_ = s.tr.Close(res.Port)
		return res, err
	}

	return res, nil
}

// ConnectPort binds to port without probing it.
func (s *Session) ConnectPort(port string) error {
	if s.Scheduler() != nil {
		return ErrAlreadyConnected
	}

	if err := s.tr.Open(port, s.profile.Mode); err != nil {
		return err
	}

	if err := s.bind(port); err != nil {
		_ = s.tr.Close(port)
		return err
	}

	return nil
}

func (s *Session) bind(port string) error {
	opts := append([]scheduler.Option{
		scheduler.WithDefaultMaxAttempts(s.profile.MaxAttempts),
		scheduler.WithDefaultReadTimeout(s.profile.ReadTimeout),
		scheduler.WithLogger(s.logger),
	}, s.schedOpts...)

	sched, err := scheduler.New(s.ctx, s.tr, port, opts...)
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		_ = sched.Close()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched != nil {
		_ = sched.Close()
		return ErrAlreadyConnected
	}
	s.sched = sched
	s.port = port
	s.logger.Info("session bound", "port", port)

	return nil
}

// Close stops the scheduler and closes the port.
func (s *Session) Close() error {
	s.mu.Lock()
	sched, port := s.sched, s.port
	s.sched, s.port = nil, ""
	s.mu.Unlock()

	if sched == nil {
		return nil
	}

	return errors.Join(sched.Close(), s.tr.Close(port))
}

// SetFirmware records the firmware version text.
func (s *Session) SetFirmware(version string) {
	s.mu.Lock()
	s.firmware = version
	s.mu.Unlock()
}

// Firmware returns the last recorded firmware version text.
func (s *Session) Firmware() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.firmware
}

// ReqFirmwareVersion asks the instrument to identify itself and returns the
// firmware text with trailing NULs removed.
func (s *Session) ReqFirmwareVersion(ctx context.Context) (string, error) {
	res, err := s.do(ctx, "firmware", s.profile.Probe(), s.profile.ProbeResponse())
	if err != nil {
		return "", fmt.Errorf("device: read firmware: %w", err)
	}

	vendor, ok := res.Named(VendorGroup)
	if !ok {
		return "", fmt.Errorf("device: read firmware: %w", ErrUnexpectedReply)
	}

	version := frame.Text(vendor)
	s.SetFirmware(version)

	return version, nil
}

// SetOutputConfig validates and stores an output configuration without sending
// it. A rejected configuration leaves the stored one unchanged.
func (s *Session) SetOutputConfig(sensor Sensor, value int, group string, compensation bool) error {
	cfg, err := s.profile.NewOutputConfig(sensor, value, group, compensation)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.output = cfg
	s.mu.Unlock()

	return nil
}

// OutputConfig returns the stored output configuration.
func (s *Session) OutputConfig() OutputConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.output
}

// SendOutputConfig writes the stored output configuration to the instrument.
func (s *Session) SendOutputConfig(ctx context.Context) error {
	return s.SendOutput(ctx, s.OutputConfig())
}

// SendOutput writes cfg to the instrument and waits for the acknowledgement.
// The compensation state used by ReqInputValue changes only once the write is
// acknowledged.
func (s *Session) SendOutput(ctx context.Context, cfg OutputConfig) error {
	_, err := s.do(ctx, "output config", s.profile.WriteOutputFrame(cfg), s.profile.WriteOutputReply())
	if err != nil {
		return fmt.Errorf("device: send output config: %w", err)
	}

	s.mu.Lock()
	s.compensation = cfg.Compensation
	s.mu.Unlock()

	return nil
}

// ReqInputValue reads the configured sensor type and the input and ambient
// registers. When compensation differs from the state last acknowledged by the
// instrument, the output is reconfigured first and the instrument is given its
// settle delay.
func (s *Session) ReqInputValue(ctx context.Context, compensation bool) (Reading, error) {
	regs, err := s.ReadHoldingRegisters(ctx, RegSensorType, 1)
	if err != nil {
		return Reading{}, fmt.Errorf("device: read sensor type: %w", err)
	}
	code := regs[0]

	s.mu.Lock()
	changed := s.compensation != compensation
	s.mu.Unlock()

	if changed {
		if err := s.reconfigureCompensation(ctx, code, compensation); err != nil {
			return Reading{}, err
		}
	}

	regs, err = s.ReadInputRegisters(ctx, RegInputValue, 2)
	if err != nil {
		return Reading{}, fmt.Errorf("device: read input: %w", err)
	}

	scale := s.profile.ReadingScale
	if scale == 0 {
		scale = 1
	}
	input := float64(int16(regs[0])) / scale   //nolint:gosec
	ambient := float64(int16(regs[1])) / scale //nolint:gosec

	reading := Reading{
		SensorCode:    code,
		Input:         input,
		Ambient:       ambient,
		Uncompensated: input - ambient,
	}
	if r, ok := s.profile.SensorByCode(code); ok {
		reading.Sensor = r.Sensor
	}

	return reading, nil
}

func (s *Session) reconfigureCompensation(ctx context.Context, code uint16, compensation bool) error {
	r, ok := s.profile.SensorByCode(code)
	if !ok {
		return &ConfigError{Field: "sensor code", Value: code, Reason: "instrument reports an unsupported sensor"}
	}

	groups := s.profile.Groups()
	cfg, err := s.profile.NewOutputConfig(r.Sensor, s.profile.CompensationSettleValue, groups[0], compensation)
	if err != nil {
		return err
	}
	if err := s.SendOutput(ctx, cfg); err != nil {
		return err
	}

	s.mu.Lock()
	s.output = cfg
	s.mu.Unlock()

	s.logger.Debug("compensation changed, waiting for instrument", "compensation", compensation, "delay", s.profile.SettleDelay)

	return pool.Sleep(ctx, s.profile.SettleDelay)
}

// ReadHoldingRegisters reads count holding registers starting at addr.
func (s *Session) ReadHoldingRegisters(ctx context.Context, addr, count uint16) ([]uint16, error) {
	return s.readRegisters(ctx, frame.FuncReadHoldingRegisters, addr, count)
}

// ReadInputRegisters reads count input registers starting at addr.
func (s *Session) ReadInputRegisters(ctx context.Context, addr, count uint16) ([]uint16, error) {
	return s.readRegisters(ctx, frame.FuncReadInputRegisters, addr, count)
}

func (s *Session) readRegisters(ctx context.Context, fn byte, addr, count uint16) ([]uint16, error) {
	if count == 0 || count > 125 {
		return nil, &ConfigError{Field: "register count", Value: count, Reason: "must be in [1, 125]"}
	}

	res, err := s.do(ctx, fmt.Sprintf("read %#02x %#04x", fn, addr),
		frame.ReadRegisters(s.profile.CRC, s.profile.Slave, fn, addr, count),
		frame.ReadRegistersReply(s.profile.CRC, s.profile.Slave, fn, count))
	if err != nil {
		return nil, err
	}

	regs := make([]uint16, 0, count)
	for _, g := range res.Groups() {
		v, err := frame.Uint16(g)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnexpectedReply, err)
		}
		regs = append(regs, v)
	}

	return regs, nil
}

// WriteRegisters writes values to consecutive holding registers starting at addr.
func (s *Session) WriteRegisters(ctx context.Context, addr uint16, values []uint16) error {
	if len(values) == 0 || len(values) > 123 {
		return &ConfigError{Field: "register count", Value: len(values), Reason: "must be in [1, 123]"}
	}

	_, err := s.do(ctx, fmt.Sprintf("write %#04x", addr),
		frame.WriteMultipleRegisters(s.profile.CRC, s.profile.Slave, addr, values),
		frame.WriteMultipleRegistersReply(s.profile.CRC, s.profile.Slave, addr, uint16(len(values)))) //nolint:gosec

	return err
}

// WriteRegister writes one holding register.
func (s *Session) WriteRegister(ctx context.Context, addr, value uint16) error {
	_, err := s.do(ctx, fmt.Sprintf("write single %#04x", addr),
		frame.WriteSingleRegister(s.profile.CRC, s.profile.Slave, addr, value),
		frame.WriteSingleRegisterReply(s.profile.CRC, s.profile.Slave, addr, value))

	return err
}

// do submits one request and waits at most the profile's await timeout for it.
func (s *Session) do(ctx context.Context, label string, payload frame.Frame, pattern *frame.Pattern) (scheduler.Result, error) {
	sched := s.Scheduler()
	if sched == nil {
		return scheduler.Result{}, ErrNotConnected
	}

	h, err := sched.Submit(scheduler.Request{
		Payload:     payload,
		Pattern:     pattern,
		MaxAttempts: s.profile.MaxAttempts,
		ReadTimeout: s.profile.ReadTimeout,
		Label:       label,
	})
	if err != nil {
		return scheduler.Result{}, err
	}

	if s.profile.AwaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.profile.AwaitTimeout)
		defer cancel()
	}

	res, err := sched.Await(ctx, h)
	if err != nil {
		s.logger.Warn("request not answered in time", "label", label, "requestID", h.ID())
		return res, err
	}
	if res.Err != nil {
		return res, res.Err
	}

	return res, nil
}
