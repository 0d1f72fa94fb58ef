package checksum

import "fmt"

// Sum16 is a computed 16-bit checksum.
type Sum16 uint16

// Hi returns the most significant byte.
func (s Sum16) Hi() byte { return byte(s >> 8) }

// Lo returns the least significant byte.
func (s Sum16) Lo() byte { return byte(s) }

// Bytes returns the checksum as two bytes, high byte first unless inverted.
func (s Sum16) Bytes(inverted bool) []byte {
	if inverted {
		return []byte{s.Lo(), s.Hi()}
	}

	return []byte{s.Hi(), s.Lo()}
}

// Hex renders the checksum as two space separated upper-case hex pairs,
// e.g. "E7 B2", or "B2 E7" when inverted.
func (s Sum16) Hex(inverted bool) string {
	b := s.Bytes(inverted)
	return fmt.Sprintf("%02X %02X", b[0], b[1])
}

func (s Sum16) String() string {
	return fmt.Sprintf("0x%04X", uint16(s))
}

// ComputeCRC16 computes the reflected CRC16 of data with the given seed and polynomial.
//
// An empty input returns init unchanged.
func ComputeCRC16(data []byte, init, poly uint16) uint16 {
	crc := init
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
	}

	return crc
}

// CRC16 computes the CRC16 of data using cfg.
func CRC16(data []byte, cfg Config) Sum16 {
	return Sum16(ComputeCRC16(data, cfg.Init, cfg.Polynomial))
}

// Append16 appends the CRC16 of frame to frame in the byte order dictated by cfg.
func Append16(frame []byte, cfg Config) []byte {
	sum := CRC16(frame, cfg)
	return append(frame, sum.Bytes(cfg.ByteOrderInverted)...)
}

// Verify16 reports whether the last two bytes of frame hold the CRC16 of the
// preceding bytes, in the byte order dictated by cfg.
func Verify16(frame []byte, cfg Config) bool {
	if len(frame) < 2 {
		return false
	}

	n := len(frame) - 2
	want := CRC16(frame[:n], cfg).Bytes(cfg.ByteOrderInverted)

	return frame[n] == want[0] && frame[n+1] == want[1]
}

// CRC16Hex computes the CRC16 over a textual frame such as "01 2B 0E 04 01" and
// returns the checksum rendered per cfg. Tokens that are not hex bytes count as 0xFF.
func CRC16Hex(text string, cfg Config) string {
	return CRC16(ParseHex(text), cfg).Hex(cfg.ByteOrderInverted)
}

// AppendHex returns text followed by a space and its CRC16, e.g.
// "01 2B 0E 04 01" -> "01 2B 0E 04 01 B2 E7" for the Modbus variant.
func AppendHex(text string, cfg Config) string {
	return text + " " + CRC16Hex(text, cfg)
}
