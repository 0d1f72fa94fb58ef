package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-tempsim/device"
	"github.com/arloliu/go-tempsim/internal/queue"
	"github.com/arloliu/go-tempsim/transport"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)

	return out.String(), err
}

func writeConfig(t *testing.T, text string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tempsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))

	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	p := device.TempSimProfile()
	assert.Equal(t, transport.DefaultMode, cfg.Mode())
	assert.Equal(t, "queue", cfg.Scheduler.Policy)
	assert.Equal(t, p.MaxAttempts, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, p.ReadTimeout, cfg.Profile().ReadTimeout)
	assert.Empty(t, cfg.Ports)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
serial:
  baud_rate: 19200
  parity: even
ports: [/dev/ttyUSB0, /dev/ttyUSB1]
scheduler:
  policy: stack
  max_attempts: 3
  read_timeout: 250ms
discovery:
  per_port_timeout: 2s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, transport.Mode{BaudRate: 19200, Parity: transport.ParityEven}, cfg.Mode())
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, cfg.Ports)
	assert.Equal(t, 3, cfg.Profile().MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Profile().ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.Discovery.PerPortTimeout)
	// untouched keys keep their defaults
	assert.Equal(t, device.TempSimProfile().AwaitTimeout, cfg.Scheduler.AwaitTimeout)

	opts, err := cfg.SchedulerOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	policy, err := queue.ParsePolicy(cfg.Scheduler.Policy)
	require.NoError(t, err)
	assert.Equal(t, queue.LIFO, policy)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "parity", text: "serial:\n  parity: mark\n"},
		{name: "policy", text: "scheduler:\n  policy: random\n"},
		{name: "baud rate", text: "serial:\n  baud_rate: 0\n"},
		{name: "syntax", text: "serial: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.text))
			require.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestCmd_Version(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tempsim dev")
}

func TestCmd_DemoPorts(t *testing.T) {
	out, err := runCmd(t, "ports", "--demo")
	require.NoError(t, err)
	assert.Equal(t, demoSilentPort+"\n"+demoDevicePort+"\n", out)
}

func TestCmd_DemoDiscover(t *testing.T) {
	path := writeConfig(t, "discovery:\n  per_port_timeout: 50ms\n")

	out, err := runCmd(t, "discover", "--demo", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "no match")
	assert.Contains(t, out, "Found instrument on "+demoDevicePort+` (firmware "INV-Cappo")`)
}

func TestCmd_DemoFirmware(t *testing.T) {
	out, err := runCmd(t, "firmware", "--demo", "--port", demoDevicePort)
	require.NoError(t, err)
	assert.Equal(t, demoDevicePort+": INV-Cappo\n", out)
}

func TestCmd_DemoConfigure(t *testing.T) {
	out, err := runCmd(t, "configure", "--demo", "--port", demoDevicePort, "--sensor", "K", "--value", "500", "--group", "C")
	require.NoError(t, err)
	assert.Equal(t, "Output set: sensor K, value 500, group C, compensation false\n", out)

	_, err = runCmd(t, "configure", "--demo", "--port", demoDevicePort, "--sensor", "J", "--value", "900")
	require.ErrorIs(t, err, device.ErrInvalidConfig)
}

func TestCmd_DemoRead(t *testing.T) {
	out, err := runCmd(t, "read", "--demo", "--port", demoDevicePort, "--policy", "stack", "--count", "2", "--interval", "1ms")
	require.NoError(t, err)

	line := "sensor=J input=25.0 ambient=25.0 uncompensated=0.0\n"
	assert.Equal(t, line+line, out)
}

func TestCmd_InvalidFlags(t *testing.T) {
	_, err := runCmd(t, "ports", "--demo", "--log-level", "loud")
	require.Error(t, err)

	_, err = runCmd(t, "ports", "--demo", "--policy", "random")
	require.Error(t, err)

	_, err = runCmd(t, "read", "--demo", "--count", "0")
	require.Error(t, err)
}
