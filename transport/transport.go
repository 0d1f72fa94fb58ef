// Package transport defines the byte level serial port abstraction the protocol
// engine talks through.
//
// Implementations live in sub packages: serialport drives real hardware through
// go.bug.st/serial, simport provides in-memory ports for tests and demos.
package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every Transport implementation.
var (
	// ErrTransport is the root of all transport failures. Use errors.Is to detect it.
	ErrTransport = errors.New("transport: failure")
	// ErrPortNotOpen is returned when an operation needs an open port.
	ErrPortNotOpen = fmt.Errorf("%w: port not open", ErrTransport)
	// ErrPortNotFound is returned when the named port does not exist.
	ErrPortNotFound = fmt.Errorf("%w: port not found", ErrTransport)
)

// Parity of the serial line.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return fmt.Sprintf("Parity(%d)", uint8(p))
	}
}

// ParseParity accepts "none", "odd" and "even".
func ParseParity(name string) (Parity, error) {
	switch name {
	case "", "none", "n", "N":
		return ParityNone, nil
	case "odd", "o", "O":
		return ParityOdd, nil
	case "even", "e", "E":
		return ParityEven, nil
	default:
		return ParityNone, fmt.Errorf("transport: unknown parity %q", name)
	}
}

// Mode holds the line settings used when opening a port.
type Mode struct {
	BaudRate int
	Parity   Parity
}

// DefaultMode is 9600 baud, no parity.
var DefaultMode = Mode{BaudRate: 9600, Parity: ParityNone}

func (m Mode) String() string {
	return fmt.Sprintf("%d/%s", m.BaudRate, m.Parity)
}

// Transport moves raw bytes to and from named serial ports.
//
// Receive never blocks: it returns whatever arrived since the previous Receive
// (possibly nothing) and consumes it. Callers poll and accumulate.
type Transport interface {
	// Ports lists the port names currently available.
	Ports() ([]string, error)
	// Open opens port with the given line settings. Opening an open port is a no-op.
	Open(port string, mode Mode) error
	// Close closes port. Closing a closed port is a no-op.
	Close(port string) error
	// IsOpen reports whether port is open.
	IsOpen(port string) bool
	// Send transmits data on port.
	Send(port string, data []byte) error
	// Receive returns and consumes the bytes received on port so far.
	Receive(port string) ([]byte, error)
	// Flush discards any received but unread bytes.
	Flush(port string) error
}

// OpError describes a failed transport operation on a port. It unwraps to the
// underlying cause and matches ErrTransport.
type OpError struct {
	Op   string
	Port string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Port, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Is makes every OpError match ErrTransport.
func (e *OpError) Is(target error) bool {
	return target == ErrTransport
}

// NewOpError wraps err, or returns nil when err is nil.
func NewOpError(op, port string, err error) error {
	if err == nil {
		return nil
	}

	return &OpError{Op: op, Port: port, Err: err}
}
