package frame

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint16(t *testing.T) {
	v, err := Uint16([]byte{0x01, 0x2C})
	require.NoError(t, err)
	assert.Equal(t, uint16(300), v)

	v, err = Uint16Order([]byte{0x01, 0x2C}, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2C01), v)

	_, err = Uint16([]byte{0x01})
	require.ErrorIs(t, err, ErrFieldSize)
}

func TestInt16(t *testing.T) {
	v, err := Int16([]byte{0xFF, 0x9C})
	require.NoError(t, err)
	assert.Equal(t, int16(-100), v)

	assert.Equal(t, []byte{0xFF, 0x9C}, PutInt16(-100))
	assert.Equal(t, []byte{0x01, 0x2C}, PutUint16(300))
}

func TestUint16s(t *testing.T) {
	regs, err := Uint16s([]byte{0x00, 0x01, 0x01, 0x2C})
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 300}, regs)

	_, err = Uint16s([]byte{0x00, 0x01, 0x01})
	require.ErrorIs(t, err, ErrFieldSize)
}

func TestText(t *testing.T) {
	assert.Equal(t, "INV-Cappo", Text([]byte("INV-Cappo\x00\x00")))
	assert.Equal(t, "Inválido", Text([]byte{'I', 'n', 'v', 0xE1, 'l', 'i', 'd', 'o'}))
	assert.Empty(t, Text(nil))
}
