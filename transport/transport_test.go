package transport

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpError(t *testing.T) {
	err := NewOpError("send", "COM3", io.ErrClosedPipe)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, "transport: send COM3: io: read/write on closed pipe", err.Error())

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "COM3", opErr.Port)

	assert.NoError(t, NewOpError("send", "COM3", nil))
}

func TestSentinels(t *testing.T) {
	assert.ErrorIs(t, ErrPortNotOpen, ErrTransport)
	assert.ErrorIs(t, ErrPortNotFound, ErrTransport)
}

func TestParseParity(t *testing.T) {
	tests := []struct {
		in      string
		want    Parity
		wantErr bool
	}{
		{"", ParityNone, false},
		{"none", ParityNone, false},
		{"odd", ParityOdd, false},
		{"E", ParityEven, false},
		{"mark", ParityNone, true},
	}

	for _, tt := range tests {
		got, err := ParseParity(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "9600/none", DefaultMode.String())
	assert.Equal(t, "19200/even", Mode{BaudRate: 19200, Parity: ParityEven}.String())
}
