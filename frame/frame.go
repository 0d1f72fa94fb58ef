package frame

import (
	"github.com/arloliu/go-tempsim/checksum"
)

// Frame is a byte sequence sent to or received from the device.
type Frame []byte

// Build concatenates fields in order and appends the CRC16 computed over them,
// in the byte order dictated by cfg.
func Build(cfg checksum.Config, fields ...[]byte) Frame {
	n := 2
	for _, f := range fields {
		n += len(f)
	}

	buf := make([]byte, 0, n)
	for _, f := range fields {
		buf = append(buf, f...)
	}

	return Frame(checksum.Append16(buf, cfg))
}

// BuildHex is like Build but takes textual fields such as "01", "20 02".
// Tokens that are not hex bytes are packed as 0xFF.
func BuildHex(cfg checksum.Config, fields ...string) Frame {
	bs := make([][]byte, len(fields))
	for i, f := range fields {
		bs[i] = checksum.ParseHex(f)
	}

	return Build(cfg, bs...)
}

// ParseHex converts "01 2B 0E" style text into a Frame without adding a checksum.
func ParseHex(text string) Frame {
	return Frame(checksum.ParseHex(text))
}

// String renders the frame as space separated hex pairs, the wire text format.
func (f Frame) String() string {
	return checksum.FormatHex(f)
}

// Bytes returns the underlying byte slice.
func (f Frame) Bytes() []byte {
	return f
}

// Body returns the frame without its trailing 2-byte checksum.
func (f Frame) Body() []byte {
	if len(f) < 2 {
		return nil
	}

	return f[:len(f)-2]
}

// Valid reports whether the trailing checksum matches the body under cfg.
func (f Frame) Valid(cfg checksum.Config) bool {
	return checksum.Verify16(f, cfg)
}

// Clone returns a copy of f.
func (f Frame) Clone() Frame {
	if f == nil {
		return nil
	}

	out := make(Frame, len(f))
	copy(out, f)

	return out
}
