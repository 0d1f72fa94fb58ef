// Package simport implements transport.Transport over in-memory ports, each
// backed by a Responder that plays the part of the attached device.
package simport

import (
	"slices"
	"sync"
	"time"

	"github.com/arloliu/go-tempsim/transport"
)

// Responder produces the bytes a device sends back for one received frame.
// Returning nil means the device stays silent.
type Responder func(request []byte) []byte

// PortOption configures a simulated port.
type PortOption func(*simPort)

// WithLatency delays every reply by d.
func WithLatency(d time.Duration) PortOption {
	return func(p *simPort) { p.latency = d }
}

// WithFragments splits every reply into pieces of n bytes, delivered one per Receive call.
func WithFragments(n int) PortOption {
	return func(p *simPort) { p.fragment = n }
}

// WithOpenError makes Open fail with err.
func WithOpenError(err error) PortOption {
	return func(p *simPort) { p.openErr = err }
}

// WithSendError makes Send fail with err.
func WithSendError(err error) PortOption {
	return func(p *simPort) { p.sendErr = err }
}

type simPort struct {
	name      string
	responder Responder
	latency   time.Duration
	fragment  int
	openErr   error
	sendErr   error

	open  bool
	mode  transport.Mode
	opens int
	inbox [][]byte
	sent  [][]byte
	epoch int
}

// Network is a set of simulated ports. It is safe for concurrent use.
type Network struct {
	mu      sync.Mutex
	ports   map[string]*simPort
	order   []string
	listErr error
}

var _ transport.Transport = (*Network)(nil)

// New creates an empty Network.
func New() *Network {
	return &Network{ports: make(map[string]*simPort)}
}

// AddPort registers a port. responder may be nil for a port with nothing attached.
func (n *Network) AddPort(name string, responder Responder, opts ...PortOption) {
	p := &simPort{name: name, responder: responder}
	for _, opt := range opts {
		opt(p)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.ports[name]; !exists {
		n.order = append(n.order, name)
	}
	n.ports[name] = p
}

// SetResponder replaces the responder of an existing port.
func (n *Network) SetResponder(name string, responder Responder) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if p, ok := n.ports[name]; ok {
		p.responder = responder
	}
}

// SetPortsError makes Ports fail with err. nil restores normal listing.
func (n *Network) SetPortsError(err error) {
	n.mu.Lock()
	n.listErr = err
	n.mu.Unlock()
}

// Ports lists the registered ports in registration order.
func (n *Network) Ports() ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listErr != nil {
		return nil, transport.NewOpError("list", "", n.listErr)
	}

	return slices.Clone(n.order), nil
}

// Open marks the port open with the given mode.
func (n *Network) Open(port string, mode transport.Mode) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.ports[port]
	if !ok {
		return transport.NewOpError("open", port, transport.ErrPortNotFound)
	}
	if p.openErr != nil {
		return transport.NewOpError("open", port, p.openErr)
	}
	if p.open {
		return nil
	}

	p.open = true
	p.mode = mode
	p.opens++
	p.inbox = nil

	return nil
}

// Close marks the port closed and drops pending input.
func (n *Network) Close(port string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.ports[port]
	if !ok {
		return transport.NewOpError("close", port, transport.ErrPortNotFound)
	}

	p.open = false
	p.inbox = nil
	p.epoch++

	return nil
}

// IsOpen reports whether the port is open.
func (n *Network) IsOpen(port string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.ports[port]

	return ok && p.open
}

// Send records data and schedules the responder's reply.
func (n *Network) Send(port string, data []byte) error {
	n.mu.Lock()
	p, err := n.openPort("send", port)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	if p.sendErr != nil {
		n.mu.Unlock()
		return transport.NewOpError("send", port, p.sendErr)
	}

	req := slices.Clone(data)
	p.sent = append(p.sent, req)
	responder, latency, epoch := p.responder, p.latency, p.epoch
	n.mu.Unlock()

	if responder == nil {
		return nil
	}

	reply := responder(slices.Clone(req))
	if len(reply) == 0 {
		return nil
	}

	if latency <= 0 {
		n.deliver(port, epoch, reply)
		return nil
	}

	time.AfterFunc(latency, func() { n.deliver(port, epoch, reply) })

	return nil
}

// Receive returns pending input. With WithFragments only one piece is returned per call.
func (n *Network) Receive(port string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, err := n.openPort("receive", port)
	if err != nil {
		return nil, err
	}
	if len(p.inbox) == 0 {
		return nil, nil
	}

	if p.fragment > 0 {
		chunk := p.inbox[0]
		p.inbox = p.inbox[1:]

		return chunk, nil
	}

	var out []byte
	for _, chunk := range p.inbox {
		out = append(out, chunk...)
	}
	p.inbox = nil

	return out, nil
}

// Flush drops pending input.
func (n *Network) Flush(port string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, err := n.openPort("flush", port)
	if err != nil {
		return err
	}
	p.inbox = nil

	return nil
}

// Inject queues bytes on port as if the device had sent them unsolicited.
func (n *Network) Inject(port string, data []byte) {
	n.mu.Lock()
	p, ok := n.ports[port]
	epoch := 0
	if ok {
		epoch = p.epoch
	}
	n.mu.Unlock()

	if ok {
		n.deliver(port, epoch, slices.Clone(data))
	}
}

// Sent returns every frame transmitted on port, oldest first.
func (n *Network) Sent(port string) [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.ports[port]
	if !ok {
		return nil
	}

	out := make([][]byte, len(p.sent))
	for i, f := range p.sent {
		out[i] = slices.Clone(f)
	}

	return out
}

// OpenCount returns how many times port has been opened.
func (n *Network) OpenCount(port string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	if p, ok := n.ports[port]; ok {
		return p.opens
	}

	return 0
}

// OpenPorts lists the ports currently open.
func (n *Network) OpenPorts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	var open []string
	for _, name := range n.order {
		if n.ports[name].open {
			open = append(open, name)
		}
	}

	return open
}

// ModeOf returns the line settings the port was last opened with.
func (n *Network) ModeOf(port string) (transport.Mode, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.ports[port]
	if !ok {
		return transport.Mode{}, false
	}

	return p.mode, true
}

func (n *Network) openPort(op, port string) (*simPort, error) {
	p, ok := n.ports[port]
	if !ok {
		return nil, transport.NewOpError(op, port, transport.ErrPortNotFound)
	}
	if !p.open {
		return nil, transport.NewOpError(op, port, transport.ErrPortNotOpen)
	}

	return p, nil
}

// deliver appends reply to the inbox unless the port was closed since the
// request was sent.
func (n *Network) deliver(port string, epoch int, reply []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.ports[port]
	if !ok || !p.open || p.epoch != epoch {
		return
	}

	if p.fragment <= 0 {
		p.inbox = append(p.inbox, reply)
		return
	}

	for chunk := range slices.Chunk(reply, p.fragment) {
		p.inbox = append(p.inbox, chunk)
	}
}
