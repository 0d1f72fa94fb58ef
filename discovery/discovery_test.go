package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-tempsim/frame"
	"github.com/arloliu/go-tempsim/logger"
	"github.com/arloliu/go-tempsim/transport"
	"github.com/arloliu/go-tempsim/transport/simport"
)

var (
	probeRequest = frame.ParseHex("01 2B 0E 04 01 B2 E7")
	probeReply   = frame.ParseHex("01 2B 0E 04 81 00 00 01 01 09 49 4E 56 2D 43 61 70 70 6F BE B7")
	testProbe    = Probe{
		Request:  probeRequest,
		Response: frame.MustParsePattern("01 2B 0E 04 81 00 00 01 {objectID:1} {vendor:*} CRC"),
	}
)

func TestMain(m *testing.M) {
	level, _ := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger.SetLevel(level)

	os.Exit(m.Run())
}

func device(req []byte) []byte {
	if bytes.Equal(req, probeRequest) {
		return probeReply
	}

	return nil
}

func chatter(req []byte) []byte {
	return []byte{0x00, 0x7F, 0x55}
}

// exclusiveTransport records the maximum number of simultaneously open ports.
type exclusiveTransport struct {
	transport.Transport

	mu      sync.Mutex
	open    map[string]bool
	maxOpen int
	delay   map[string]time.Duration
}

func newExclusive(tr transport.Transport) *exclusiveTransport {
	return &exclusiveTransport{Transport: tr, open: map[string]bool{}, delay: map[string]time.Duration{}}
}

func (e *exclusiveTransport) Open(port string, mode transport.Mode) error {
	e.mu.Lock()
	d := e.delay[port]
	e.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}

	if err := e.Transport.Open(port, mode); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.open[port] = true
	n := 0
	for _, o := range e.open {
		if o {
			n++
		}
	}
	e.maxOpen = max(e.maxOpen, n)

	return nil
}

func (e *exclusiveTransport) Close(port string) error {
	e.mu.Lock()
	e.open[port] = false
	e.mu.Unlock()

	return e.Transport.Close(port)
}

func newNetwork(n, deviceAt int) (*simport.Network, []string) {
	net := simport.New()
	names := make([]string, n)
	for i := range n {
		names[i] = fmt.Sprintf("COM%d", i+1)
		if i == deviceAt {
			net.AddPort(names[i], device)
		} else {
			net.AddPort(names[i], chatter)
		}
	}

	return net, names
}

func fastOpts() []Option {
	return []Option{
		WithPerPortTimeout(100 * time.Millisecond),
		WithReadWindow(20 * time.Millisecond),
		WithPollInterval(2 * time.Millisecond),
	}
}

func TestDiscover_OnlyIndexIMatches(t *testing.T) {
	const n = 4
	for i := range n {
		t.Run(fmt.Sprintf("device at %d", i), func(t *testing.T) {
			net, names := newNetwork(n, i)
			tr := newExclusive(net)

			res, err := Discover(context.Background(), tr, names, testProbe, fastOpts()...)
			require.NoError(t, err)

			assert.Equal(t, names[i], res.Port)
			assert.Equal(t, []string{names[i]}, net.OpenPorts())
			assert.Equal(t, 1, tr.maxOpen)
			require.Len(t, res.Reports, i+1)
			for j, r := range res.Reports[:i] {
				assert.Equal(t, StatusNoMatch, r.Status, "port %d", j)
			}
			assert.Equal(t, StatusMatched, res.Reports[i].Status)
			for _, later := range names[i+1:] {
				assert.Zero(t, net.OpenCount(later), "ports after the match are not probed")
			}
			assert.Equal(t, "INV-Cappo", frame.Text(res.Match.MustNamed("vendor")))
		})
	}
}

func TestDiscover_NotFound(t *testing.T) {
	net, names := newNetwork(3, -1)
	tr := newExclusive(net)

	res, err := Discover(context.Background(), tr, names, testProbe, fastOpts()...)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, res.Port)
	assert.Empty(t, net.OpenPorts())
	assert.Len(t, res.Reports, 3)
	assert.Equal(t, 1, tr.maxOpen)
	for _, name := range names {
		assert.Equal(t, 1, net.OpenCount(name))
		assert.Equal(t, [][]byte{probeRequest}, net.Sent(name))
	}
}

func TestDiscover_SkipsFailingPorts(t *testing.T) {
	net := simport.New()
	net.AddPort("COM1", device, simport.WithOpenError(errors.New("access denied")))
	net.AddPort("COM2", device, simport.WithSendError(errors.New("write failed")))
	net.AddPort("COM3", nil)
	net.AddPort("COM4", device)

	res, err := Discover(context.Background(), net, nil, testProbe, fastOpts()...)
	require.NoError(t, err)
	assert.Equal(t, "COM4", res.Port)

	require.Len(t, res.Reports, 4)
	assert.Equal(t, StatusOpenFailed, res.Reports[0].Status)
	require.ErrorIs(t, res.Reports[0].Err, transport.ErrTransport)
	assert.Equal(t, StatusSendFailed, res.Reports[1].Status)
	assert.Equal(t, StatusNoMatch, res.Reports[2].Status)
	assert.Empty(t, res.Reports[2].Received)
	assert.Equal(t, []string{"COM4"}, net.OpenPorts())
}

func TestDiscover_ReplyAfterNoise(t *testing.T) {
	net := simport.New()
	net.AddPort("COM1", func(req []byte) []byte {
		return append([]byte{0x00, 0xFF}, device(req)...)
	}, simport.WithFragments(3))

	res, err := Discover(context.Background(), net, []string{"COM1"}, testProbe, fastOpts()...)
	require.NoError(t, err)
	assert.Equal(t, "COM1", res.Port)
	assert.Equal(t, 2, res.Match.Offset)
}

func TestDiscover_DefaultReadWindowIsHalfTheTimeout(t *testing.T) {
	net := simport.New()
	net.AddPort("COM1", device, simport.WithLatency(80*time.Millisecond))

	// 80ms latency misses a 50ms window
	_, err := Discover(context.Background(), net, []string{"COM1"}, testProbe, WithPerPortTimeout(100*time.Millisecond))
	require.ErrorIs(t, err, ErrNotFound)

	// but fits in a 150ms one
	res, err := Discover(context.Background(), net, []string{"COM1"}, testProbe, WithPerPortTimeout(300*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "COM1", res.Port)
}

func TestDiscover_OpenTimeout(t *testing.T) {
	net, names := newNetwork(2, 0)
	tr := newExclusive(net)
	tr.delay[names[0]] = 100 * time.Millisecond

	res, err := Discover(context.Background(), tr, names, testProbe,
		WithPerPortTimeout(20*time.Millisecond), WithPollInterval(time.Millisecond))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StatusOpenFailed, res.Reports[0].Status)

	// the late open is closed once it completes
	assert.Eventually(t, func() bool {
		return net.OpenCount(names[0]) == 1 && !net.IsOpen(names[0])
	}, time.Second, 5*time.Millisecond)
}

func TestDiscover_EnumerationFailure(t *testing.T) {
	net := simport.New()
	net.SetPortsError(errors.New("no bus"))

	_, err := Discover(context.Background(), net, nil, testProbe)
	require.ErrorIs(t, err, transport.ErrTransport)
}

func TestDiscover_Canceled(t *testing.T) {
	net, names := newNetwork(3, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Discover(ctx, net, names, testProbe, fastOpts()...)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Port)
	assert.Empty(t, net.OpenPorts())
}

func TestDiscover_InvalidArguments(t *testing.T) {
	net, names := newNetwork(1, 0)

	_, err := Discover(context.Background(), net, names, Probe{Response: testProbe.Response})
	require.Error(t, err)

	_, err = Discover(context.Background(), net, names, testProbe, WithPerPortTimeout(0))
	require.Error(t, err)

	_, err = Discover(context.Background(), net, names, testProbe, WithMode(transport.Mode{}))
	require.Error(t, err)
}

func TestDiscover_UsesMode(t *testing.T) {
	net, names := newNetwork(1, 0)
	mode := transport.Mode{BaudRate: 19200, Parity: transport.ParityEven}

	_, err := Discover(context.Background(), net, names, testProbe, append(fastOpts(), WithMode(mode))...)
	require.NoError(t, err)

	got, ok := net.ModeOf(names[0])
	require.True(t, ok)
	assert.Equal(t, mode, got)
}

func TestCloseAll(t *testing.T) {
	net, names := newNetwork(3, 0)
	for _, name := range names {
		require.NoError(t, net.Open(name, transport.DefaultMode))
	}

	require.NoError(t, CloseAll(net, names[0]))
	assert.Equal(t, names[1:], net.OpenPorts())

	require.NoError(t, CloseAll(net))
	assert.Empty(t, net.OpenPorts())

	require.Error(t, CloseAll(net, "COM99"))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "open failed", StatusOpenFailed.String())
	assert.Equal(t, "Status(77)", Status(77).String())
}
