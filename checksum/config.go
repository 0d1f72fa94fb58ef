package checksum

import "fmt"

// Default algorithm parameters.
const (
	ModbusPolynomial uint16 = 0xA001
	ModbusInit       uint16 = 0xFFFF

	CRC8Polynomial uint8 = 0x07
	CRC8Init       uint8 = 0xFF
)

// Config describes one CRC variant. It is a value type and is never mutated
// after construction.
type Config struct {
	// Polynomial is the generator polynomial. CRC16 expects the reflected form (0xA001
	// for Modbus), CRC8 uses the low byte in normal form (0x07).
	Polynomial uint16
	// Init is the seed of the running register.
	Init uint16
	// ByteOrderInverted renders CRC16 values low byte first.
	ByteOrderInverted bool
}

var (
	// Modbus is the CRC16 variant used on the wire: low byte first.
	Modbus = Config{Polynomial: ModbusPolynomial, Init: ModbusInit, ByteOrderInverted: true}

	// ModbusText is the same CRC16 rendered high byte first, as used in textual comparisons.
	ModbusText = Config{Polynomial: ModbusPolynomial, Init: ModbusInit}

	// CRC8Default is the table driven CRC8 variant.
	CRC8Default = Config{Polynomial: uint16(CRC8Polynomial), Init: uint16(CRC8Init)}
)

// Inverted returns a copy of cfg with ByteOrderInverted set to v.
func (cfg Config) Inverted(v bool) Config {
	cfg.ByteOrderInverted = v
	return cfg
}

func (cfg Config) String() string {
	return fmt.Sprintf("poly=0x%04X init=0x%04X inverted=%t", cfg.Polynomial, cfg.Init, cfg.ByteOrderInverted)
}
