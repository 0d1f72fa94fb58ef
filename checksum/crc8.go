package checksum

import (
	"fmt"
	"sync"
)

// Table8 is a precomputed CRC8 lookup table.
type Table8 [256]uint8

type table8Key struct{ poly uint8 }

var table8Cache sync.Map // map[table8Key]*Table8

// MakeTable8 builds the lookup table for poly. Entry i is the register after
// shifting i through 8 rounds of (crc<<1) ^ (poly if the high bit was set).
func MakeTable8(poly uint8) *Table8 {
	t := &Table8{}
	for i := range 256 {
		t[i] = crc8Bitwise(uint8(i), poly)
	}

	return t
}

// crc8Bitwise runs the 8 shift rounds for a single register value.
func crc8Bitwise(v, poly uint8) uint8 {
	crc := v
	for range 8 {
		if crc&0x80 != 0 {
			crc = (crc << 1) ^ poly
		} else {
			crc <<= 1
		}
	}

	return crc
}

func table8(poly uint8) *Table8 {
	key := table8Key{poly: poly}
	if t, ok := table8Cache.Load(key); ok {
		return t.(*Table8) //nolint:forcetypeassert
	}

	t, _ := table8Cache.LoadOrStore(key, MakeTable8(poly))

	return t.(*Table8) //nolint:forcetypeassert
}

// ComputeCRC8 folds data through the table for poly starting from init.
//
// An empty input returns init unchanged.
func ComputeCRC8(data []byte, init, poly uint8) uint8 {
	t := table8(poly)
	crc := init
	for _, b := range data {
		crc = t[crc^b]
	}

	return crc
}

// Sum8 is a computed 8-bit checksum.
type Sum8 uint8

// Hex renders the checksum as one upper-case hex pair.
func (s Sum8) Hex() string {
	return fmt.Sprintf("%02X", uint8(s))
}

func (s Sum8) String() string {
	return fmt.Sprintf("0x%02X", uint8(s))
}

// CRC8 computes the CRC8 of data using the low bytes of cfg's polynomial and seed.
// A single byte has no byte order, so cfg.ByteOrderInverted is ignored.
func CRC8(data []byte, cfg Config) Sum8 {
	return Sum8(ComputeCRC8(data, uint8(cfg.Init), uint8(cfg.Polynomial))) //nolint:gosec
}

// Append8 appends the CRC8 of frame to frame.
func Append8(frame []byte, cfg Config) []byte {
	return append(frame, byte(CRC8(frame, cfg)))
}

// CRC8Hex computes the CRC8 over a textual frame such as "01 02 03".
func CRC8Hex(text string, cfg Config) string {
	return CRC8(ParseHex(text), cfg).Hex()
}
