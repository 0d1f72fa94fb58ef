// Package serialport implements transport.Transport on host serial ports using
// go.bug.st/serial.
//
// Every open port gets a reader task that drains the device into an in-memory
// buffer; Receive hands out and clears that buffer, so callers can poll without
// blocking on the line.
package serialport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-tempsim/internal/task"
	"github.com/arloliu/go-tempsim/logger"
	"github.com/arloliu/go-tempsim/transport"
)

// DefaultReadTimeout bounds each blocking read of the reader task.
const DefaultReadTimeout = 20 * time.Millisecond

// Opener opens a named serial port. It matches serial.Open.
type Opener func(name string, mode *serial.Mode) (serial.Port, error)

// Lister enumerates serial ports. It matches serial.GetPortsList.
type Lister func() ([]string, error)

// Option configures a Transport.
type Option func(*Transport)

// WithReadTimeout sets how long each reader read may block.
func WithReadTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.readTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithOpener replaces serial.Open, mainly for tests.
func WithOpener(open Opener) Option {
	return func(t *Transport) { t.open = open }
}

// WithLister replaces serial.GetPortsList, mainly for tests.
func WithLister(list Lister) Option {
	return func(t *Transport) { t.list = list }
}

// Transport drives host serial ports.
type Transport struct {
	mu          sync.Mutex
	conns       map[string]*conn
	opening     map[string]*pendingOpen
	tasks       *task.Manager
	logger      logger.Logger
	readTimeout time.Duration
	open        Opener
	list        Lister
}

var _ transport.Transport = (*Transport)(nil)

// ErrOpenInProgress is returned when a port is opened while an earlier open of
// the same port has not returned yet.
var ErrOpenInProgress = errors.New("serialport: open in progress")

// errClosedWhileOpening is returned by an open that was abandoned by Close.
var errClosedWhileOpening = errors.New("serialport: closed while opening")

// pendingOpen marks a port whose driver open has not returned. canceled is set
// by Close; the open then closes the port itself when the driver returns.
type pendingOpen struct {
	canceled bool
}

type conn struct {
	name   string
	port   serial.Port
	mu     sync.Mutex
	buf    []byte
	err    error
	closed atomic.Bool
}

// New creates a Transport. Reader tasks stop when ctx is done or Shutdown is called.
func New(ctx context.Context, opts ...Option) *Transport {
	t := &Transport{
		conns:       make(map[string]*conn),
		opening:     make(map[string]*pendingOpen),
		logger:      logger.GetLogger(),
		readTimeout: DefaultReadTimeout,
		open:        serial.Open,
		list:        serial.GetPortsList,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "serialport")
	t.tasks = task.NewManager(ctx, t.logger)

	return t
}

// Ports lists the host serial ports.
func (t *Transport) Ports() ([]string, error) {
	ports, err := t.list()
	if err != nil {
		return nil, transport.NewOpError("list", "", err)
	}

	return ports, nil
}

// Open opens port at 8 data bits, one stop bit and the given baud rate and parity.
//
// The driver open runs without holding the transport lock, so a hung device
// never blocks operations on other ports. Closing a port while its open is
// pending abandons the open: the port is closed as soon as the driver returns.
func (t *Transport) Open(port string, mode transport.Mode) error {
	t.mu.Lock()
	if _, ok := t.conns[port]; ok {
		t.mu.Unlock()
		return nil
	}
	if _, ok := t.opening[port]; ok {
		t.mu.Unlock()
		return transport.NewOpError("open", port, ErrOpenInProgress)
	}
	pending := &pendingOpen{}
	t.opening[port] = pending
	t.mu.Unlock()

	sp, err := t.openPort(port, mode)
	if err == nil {
		err = sp.SetReadTimeout(t.readTimeout)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.opening, port)
	if err == nil && pending.canceled {
		err = errClosedWhileOpening
	}

	var c *conn
	if err == nil {
		c = &conn{name: port, port: sp}
		err = t.tasks.Start("reader:"+port, c.readLoop)
	}
	if err != nil {
		if sp != nil {
			_ = sp.Close()
		}
		t.logger.Debug("port open failed", "port", port, "error", err)

		return transport.NewOpError("open", port, err)
	}

	t.conns[port] = c
	t.logger.Debug("port opened", "port", port, "mode", mode.String())

	return nil
}

// openPort returns a nil port whenever the driver reports an error.
func (t *Transport) openPort(port string, mode transport.Mode) (serial.Port, error) {
	sp, err := t.open(port, toSerialMode(mode))
	if err != nil {
		return nil, err
	}

	return sp, nil
}

// Close closes port and stops its reader. A pending open of port is abandoned.
func (t *Transport) Close(port string) error {
	t.mu.Lock()
	if pending, ok := t.opening[port]; ok {
		pending.canceled = true
	}
	c, ok := t.conns[port]
	delete(t.conns, port)
	t.mu.Unlock()

	if !ok {
		return nil
	}

	t.logger.Debug("port closed", "port", port)

	return transport.NewOpError("close", port, c.close())
}

// IsOpen reports whether port is open.
func (t *Transport) IsOpen(port string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.conns[port]

	return ok
}

// Send writes data to port.
func (t *Transport) Send(port string, data []byte) error {
	c, err := t.conn("send", port)
	if err != nil {
		return err
	}

	for len(data) > 0 {
		n, err := c.port.Write(data)
		if err != nil {
			return transport.NewOpError("send", port, err)
		}
		data = data[n:]
	}

	return nil
}

// Receive returns the bytes read since the previous call. A reader failure is
// reported once, together with any bytes read before it.
func (t *Transport) Receive(port string) ([]byte, error) {
	c, err := t.conn("receive", port)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.buf
	c.buf = nil
	readErr := c.err
	c.err = nil

	return data, transport.NewOpError("receive", port, readErr)
}

// Flush discards buffered input, both ours and the driver's.
func (t *Transport) Flush(port string) error {
	c, err := t.conn("flush", port)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.buf = nil
	c.mu.Unlock()

	return transport.NewOpError("flush", port, c.port.ResetInputBuffer())
}

// Shutdown closes every open port and waits for the reader tasks to exit.
func (t *Transport) Shutdown() error {
	t.mu.Lock()
	conns := make([]*conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	clear(t.conns)
	for _, pending := range t.opening {
		pending.canceled = true
	}
	t.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.close(); err != nil {
			errs = append(errs, transport.NewOpError("close", c.name, err))
		}
	}

	t.tasks.Stop()
	t.tasks.Wait()

	return errors.Join(errs...)
}

func (t *Transport) conn(op, port string) (*conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.conns[port]
	if !ok {
		return nil, transport.NewOpError(op, port, transport.ErrPortNotOpen)
	}

	return c, nil
}

func (c *conn) readLoop(_ context.Context) bool {
	buf := make([]byte, 256)
	n, err := c.port.Read(buf)

	if n > 0 || err != nil {
		c.mu.Lock()
		if n > 0 {
			c.buf = append(c.buf, buf[:n]...)
		}
		if err != nil && !c.closed.Load() {
			c.err = err
		}
		c.mu.Unlock()
	}

	return err == nil && !c.closed.Load()
}

func (c *conn) close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	return c.port.Close()
}

func toSerialMode(m transport.Mode) *serial.Mode {
	parity := serial.NoParity
	switch m.Parity {
	case transport.ParityOdd:
		parity = serial.OddParity
	case transport.ParityEven:
		parity = serial.EvenParity
	}

	return &serial.Mode{
		BaudRate: m.BaudRate,
		DataBits: 8,
		Parity:   parity,
		StopBits: serial.OneStopBit,
	}
}

