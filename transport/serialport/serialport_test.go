package serialport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/arloliu/go-tempsim/transport"
)

// fakePort is an in-memory serial.Port. Unused methods panic through the nil
// embedded interface.
type fakePort struct {
	serial.Port

	mu       sync.Mutex
	mode     *serial.Mode
	timeout  time.Duration
	incoming chan []byte
	written  [][]byte
	resets   int
	closed   chan struct{}
	once     sync.Once
	reply    func([]byte) []byte
	readErr  error
}

func newFakePort(mode *serial.Mode) *fakePort {
	return &fakePort{
		mode:     mode,
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (p *fakePort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	p.timeout = d
	p.mu.Unlock()

	return nil
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	timeout, readErr := p.timeout, p.readErr
	p.mu.Unlock()

	if readErr != nil {
		return 0, readErr
	}

	select {
	case <-p.closed:
		return 0, &serial.PortError{}
	case data := <-p.incoming:
		return copy(buf, data), nil
	case <-time.After(timeout):
		return 0, nil
	}
}

func (p *fakePort) Write(data []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	p.mu.Lock()
	p.written = append(p.written, append([]byte(nil), data...))
	reply := p.reply
	p.mu.Unlock()

	if reply != nil {
		if out := reply(data); out != nil {
			p.incoming <- out
		}
	}

	return len(data), nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	p.resets++
	p.mu.Unlock()

	return nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

type fakeHost struct {
	mu    sync.Mutex
	ports map[string]*fakePort
	fail  map[string]error
}

func (h *fakeHost) open(name string, mode *serial.Mode) (serial.Port, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.fail[name]; err != nil {
		return nil, err
	}
	p := newFakePort(mode)
	p.reply = func(req []byte) []byte { return append([]byte{0x01}, req...) }
	h.ports[name] = p

	return p, nil
}

func (h *fakeHost) port(name string) *fakePort {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.ports[name]
}

func newTestTransport(t *testing.T) (*Transport, *fakeHost) {
	t.Helper()
	host := &fakeHost{ports: make(map[string]*fakePort), fail: make(map[string]error)}
	tr := New(context.Background(),
		WithOpener(host.open),
		WithLister(func() ([]string, error) { return []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, nil }),
		WithReadTimeout(5*time.Millisecond),
	)
	t.Cleanup(func() { _ = tr.Shutdown() })

	return tr, host
}

func TestTransport_Ports(t *testing.T) {
	tr, _ := newTestTransport(t)

	ports, err := tr.Ports()
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, ports)

	failing := New(context.Background(), WithLister(func() ([]string, error) { return nil, errors.New("no sysfs") }))
	_, err = failing.Ports()
	require.ErrorIs(t, err, transport.ErrTransport)
}

func TestTransport_OpenAppliesMode(t *testing.T) {
	tr, host := newTestTransport(t)

	require.NoError(t, tr.Open("/dev/ttyUSB0", transport.Mode{BaudRate: 9600, Parity: transport.ParityEven}))
	assert.True(t, tr.IsOpen("/dev/ttyUSB0"))

	p := host.port("/dev/ttyUSB0")
	require.NotNil(t, p)
	assert.Equal(t, 9600, p.mode.BaudRate)
	assert.Equal(t, 8, p.mode.DataBits)
	assert.Equal(t, serial.EvenParity, p.mode.Parity)
	assert.Equal(t, serial.OneStopBit, p.mode.StopBits)

	require.NoError(t, tr.Open("/dev/ttyUSB0", transport.DefaultMode), "reopen is a no-op")
}

func TestTransport_OpenFailure(t *testing.T) {
	tr, host := newTestTransport(t)
	host.fail["/dev/ttyUSB1"] = errors.New("permission denied")

	err := tr.Open("/dev/ttyUSB1", transport.DefaultMode)
	require.ErrorIs(t, err, transport.ErrTransport)
	assert.False(t, tr.IsOpen("/dev/ttyUSB1"))
}

func TestTransport_SendReceive(t *testing.T) {
	tr, host := newTestTransport(t)
	require.NoError(t, tr.Open("/dev/ttyUSB0", transport.DefaultMode))

	require.NoError(t, tr.Send("/dev/ttyUSB0", []byte{0x10, 0x20}))
	assert.Equal(t, [][]byte{{0x10, 0x20}}, host.port("/dev/ttyUSB0").written)

	var got []byte
	assert.Eventually(t, func() bool {
		data, err := tr.Receive("/dev/ttyUSB0")
		require.NoError(t, err)
		got = append(got, data...)
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte{0x01, 0x10, 0x20}, got)
}

func TestTransport_Flush(t *testing.T) {
	tr, host := newTestTransport(t)
	require.NoError(t, tr.Open("/dev/ttyUSB0", transport.DefaultMode))

	p := host.port("/dev/ttyUSB0")
	p.incoming <- []byte{0xDE, 0xAD}
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, tr.Flush("/dev/ttyUSB0"))
	data, err := tr.Receive("/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, 1, p.resets)
}

func TestTransport_ClosedPort(t *testing.T) {
	tr, _ := newTestTransport(t)

	require.ErrorIs(t, tr.Send("/dev/ttyUSB0", []byte{1}), transport.ErrPortNotOpen)
	_, err := tr.Receive("/dev/ttyUSB0")
	require.ErrorIs(t, err, transport.ErrPortNotOpen)
	require.ErrorIs(t, tr.Flush("/dev/ttyUSB0"), transport.ErrPortNotOpen)

	require.NoError(t, tr.Open("/dev/ttyUSB0", transport.DefaultMode))
	require.NoError(t, tr.Close("/dev/ttyUSB0"))
	require.NoError(t, tr.Close("/dev/ttyUSB0"))
	assert.False(t, tr.IsOpen("/dev/ttyUSB0"))
}

func TestTransport_ReaderFailureSurfacesOnce(t *testing.T) {
	tr, host := newTestTransport(t)
	require.NoError(t, tr.Open("/dev/ttyUSB0", transport.DefaultMode))

	p := host.port("/dev/ttyUSB0")
	p.mu.Lock()
	p.readErr = errors.New("device unplugged")
	p.mu.Unlock()

	assert.Eventually(t, func() bool {
		_, err := tr.Receive("/dev/ttyUSB0")
		return errors.Is(err, transport.ErrTransport)
	}, time.Second, 5*time.Millisecond)

	_, err := tr.Receive("/dev/ttyUSB0")
	require.NoError(t, err)
}

func TestTransport_Shutdown(t *testing.T) {
	tr, host := newTestTransport(t)
	require.NoError(t, tr.Open("/dev/ttyUSB0", transport.DefaultMode))
	require.NoError(t, tr.Open("/dev/ttyUSB1", transport.DefaultMode))

	require.NoError(t, tr.Shutdown())
	assert.False(t, tr.IsOpen("/dev/ttyUSB0"))
	assert.False(t, tr.IsOpen("/dev/ttyUSB1"))

	select {
	case <-host.port("/dev/ttyUSB0").closed:
	default:
		t.Error("port should be closed")
	}
}

func TestTransport_CloseAbandonsPendingOpen(t *testing.T) {
	tr, host := newTestTransport(t)

	release := make(chan struct{})
	tr.open = func(name string, mode *serial.Mode) (serial.Port, error) {
		if name == "/dev/ttyUSB1" {
			<-release
		}

		return host.open(name, mode)
	}

	opened := make(chan error, 1)
	go func() { opened <- tr.Open("/dev/ttyUSB1", transport.DefaultMode) }()

	assert.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		_, pending := tr.opening["/dev/ttyUSB1"]

		return pending
	}, time.Second, time.Millisecond)
	require.ErrorIs(t, tr.Open("/dev/ttyUSB1", transport.DefaultMode), ErrOpenInProgress)

	// other ports are not held up by the pending open
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, tr.Open("/dev/ttyUSB0", transport.DefaultMode))
		assert.True(t, tr.IsOpen("/dev/ttyUSB0"))
		assert.False(t, tr.IsOpen("/dev/ttyUSB1"))
		assert.NoError(t, tr.Close("/dev/ttyUSB1"))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("operations on other ports blocked by a pending open")
	}

	close(release)

	select {
	case err := <-opened:
		require.ErrorIs(t, err, transport.ErrTransport)
	case <-time.After(time.Second):
		t.Fatal("pending open did not return")
	}

	assert.False(t, tr.IsOpen("/dev/ttyUSB1"))
	select {
	case <-host.port("/dev/ttyUSB1").closed:
	default:
		t.Error("abandoned port should be closed")
	}
}
