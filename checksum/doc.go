// Package checksum implements the frame integrity checks used by the instrument's
// Modbus-RTU style protocol.
//
// Two algorithms are provided:
//
//   - CRC16 "Modbus": bit-reflected, polynomial 0xA001, seed 0xFFFF.
//   - CRC8: table driven, polynomial 0x07, seed 0xFF.
//
// Both are parameterized by an immutable [Config]. The wire format of this protocol
// family transmits the CRC16 low byte first; [Config.ByteOrderInverted] selects that
// ordering for byte and text output so that callers comparing against high-byte-first
// text can share the same implementation.
package checksum
