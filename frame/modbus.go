package frame

import (
	"strconv"

	"github.com/arloliu/go-tempsim/checksum"
)

// Modbus function codes used by the instrument.
const (
	FuncReadHoldingRegisters   byte = 0x03
	FuncReadInputRegisters     byte = 0x04
	FuncWriteSingleRegister    byte = 0x06
	FuncWriteMultipleRegisters byte = 0x10
	FuncEncapsulatedInterface  byte = 0x2B
)

// MEI type and access codes for the encapsulated "read device identification" function.
const (
	MEIReadDeviceID      byte = 0x0E
	ReadDeviceIDSpecific byte = 0x04
)

// ReadRegisters builds a read request (function 0x03 or 0x04) for count registers at addr.
func ReadRegisters(cfg checksum.Config, slave, fn byte, addr, count uint16) Frame {
	return Build(cfg, []byte{slave, fn}, PutUint16(addr), PutUint16(count))
}

// ReadRegistersReply returns the pattern of a successful read reply carrying count
// registers, captured as groups "r0".."rN-1" and guarded by the CRC.
func ReadRegistersReply(cfg checksum.Config, slave, fn byte, count uint16) *Pattern {
	segs := []Segment{Fixed(slave, fn, byte(count*2))}
	for i := range int(count) {
		segs = append(segs, Capture(registerName(i), 2))
	}

	return NewPattern(segs...).WithCRC(cfg)
}

// WriteSingleRegister builds a function 0x06 request.
func WriteSingleRegister(cfg checksum.Config, slave byte, addr, value uint16) Frame {
	return Build(cfg, []byte{slave, FuncWriteSingleRegister}, PutUint16(addr), PutUint16(value))
}

// WriteSingleRegisterReply returns the pattern of the device's echo of a 0x06 request.
func WriteSingleRegisterReply(cfg checksum.Config, slave byte, addr, value uint16) *Pattern {
	return NewPattern(
		Fixed(slave, FuncWriteSingleRegister),
		Fixed(PutUint16(addr)...),
		Fixed(PutUint16(value)...),
	).WithCRC(cfg)
}

// WriteMultipleRegisters builds a function 0x10 request writing values starting at addr.
func WriteMultipleRegisters(cfg checksum.Config, slave byte, addr uint16, values []uint16) Frame {
	data := make([]byte, 0, 2*len(values))
	for _, v := range values {
		data = append(data, PutUint16(v)...)
	}

	return Build(cfg,
		[]byte{slave, FuncWriteMultipleRegisters},
		PutUint16(addr),
		PutUint16(uint16(len(values))),
		[]byte{byte(len(data))},
		data,
	)
}

// WriteMultipleRegistersReply returns the pattern of the device's acknowledgement of
// a 0x10 request: slave, function, start address and register count.
func WriteMultipleRegistersReply(cfg checksum.Config, slave byte, addr, count uint16) *Pattern {
	return NewPattern(
		Fixed(slave, FuncWriteMultipleRegisters),
		Fixed(PutUint16(addr)...),
		Fixed(PutUint16(count)...),
	).WithCRC(cfg)
}

// ReadDeviceID builds an encapsulated interface "read device identification" request
// for a single object.
func ReadDeviceID(cfg checksum.Config, slave, objectID byte) Frame {
	return Build(cfg, []byte{slave, FuncEncapsulatedInterface, MEIReadDeviceID, ReadDeviceIDSpecific, objectID})
}

func registerName(i int) string {
	return "r" + strconv.Itoa(i)
}
