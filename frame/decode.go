package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ErrFieldSize is returned when a captured field has the wrong width for the
// requested numeric decoding.
var ErrFieldSize = errors.New("frame: unexpected field size")

// Uint16 decodes a two byte big-endian unsigned field.
func Uint16(b []byte) (uint16, error) {
	return Uint16Order(b, binary.BigEndian)
}

// Uint16Order decodes a two byte unsigned field with the given byte order.
func Uint16Order(b []byte, order binary.ByteOrder) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("%w: got %d bytes, want 2", ErrFieldSize, len(b))
	}

	return order.Uint16(b), nil
}

// Int16 decodes a two byte big-endian two's complement field.
func Int16(b []byte) (int16, error) {
	v, err := Uint16(b)
	return int16(v), err //nolint:gosec
}

// Uint16s decodes a block of consecutive big-endian registers.
func Uint16s(b []byte) ([]uint16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: register block of %d bytes", ErrFieldSize, len(b))
	}

	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(b[2*i:])
	}

	return out, nil
}

// PutUint16 encodes v as two big-endian bytes.
func PutUint16(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

// PutInt16 encodes v as two big-endian two's complement bytes.
func PutInt16(v int16) []byte {
	return PutUint16(uint16(v)) //nolint:gosec
}

// Text decodes an ASCII/Latin-1 payload and strips trailing NUL bytes.
func Text(b []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		out = b
	}

	return strings.TrimRight(string(out), "\x00")
}
