package device

import (
	"math"
	"sync"

	"github.com/arloliu/go-tempsim/frame"
)

// Modbus exception codes returned by the Simulator.
const (
	ExceptionIllegalFunction byte = 0x01
	ExceptionIllegalAddress  byte = 0x02
	ExceptionIllegalValue    byte = 0x03
)

// Simulator answers requests the way the instrument does. Its Respond method
// fits simport.Responder, which makes it usable as an in-memory device.
//
// Frames with a bad checksum or a foreign slave address are ignored.
type Simulator struct {
	profile Profile

	mu       sync.Mutex
	firmware string
	holding  map[uint16]uint16
	ambient  int16
	requests int
	writes   int
}

// NewSimulator creates a simulator reporting firmware as its identification text.
func NewSimulator(p Profile, firmware string) *Simulator {
	return &Simulator{
		profile:  p,
		firmware: firmware,
		holding: map[uint16]uint16{
			RegSensorType:   0,
			RegMode:         0,
			RegValue:        0,
			RegCompensation: 0,
		},
		ambient: scaled(p, 25),
	}
}

// SetAmbient sets the simulated ambient temperature in degrees.
func (s *Simulator) SetAmbient(deg float64) {
	s.mu.Lock()
	s.ambient = scaled(s.profile, deg)
	s.mu.Unlock()
}

// SetRegister sets a holding register directly.
func (s *Simulator) SetRegister(addr, value uint16) {
	s.mu.Lock()
	s.holding[addr] = value
	s.mu.Unlock()
}

// Register returns a holding register.
func (s *Simulator) Register(addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.holding[addr]
}

// Requests returns the number of valid frames handled.
func (s *Simulator) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.requests
}

// Writes returns the number of register write requests handled.
func (s *Simulator) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writes
}

// Respond returns the reply to req, or nil to stay silent.
func (s *Simulator) Respond(req []byte) []byte {
	f := frame.Frame(req)
	if len(f) < 4 || !f.Valid(s.profile.CRC) || f[0] != s.profile.Slave {
		return nil
	}
	body := f.Body()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests++

	switch fn := body[1]; fn {
	case frame.FuncEncapsulatedInterface:
		return s.deviceID(body)
	case frame.FuncReadHoldingRegisters, frame.FuncReadInputRegisters:
		return s.read(body)
	case frame.FuncWriteSingleRegister:
		return s.writeSingle(body)
	case frame.FuncWriteMultipleRegisters:
		return s.writeMultiple(body)
	default:
		return s.exception(fn, ExceptionIllegalFunction)
	}
}

func (s *Simulator) deviceID(body []byte) []byte {
	if len(body) != 5 || body[2] != frame.MEIReadDeviceID || body[3] != frame.ReadDeviceIDSpecific {
		return s.exception(body[1], ExceptionIllegalValue)
	}

	text := []byte(s.firmware)

	return frame.Build(s.profile.CRC,
		[]byte{s.profile.Slave, frame.FuncEncapsulatedInterface, frame.MEIReadDeviceID, frame.ReadDeviceIDSpecific},
		[]byte{0x81, 0x00, 0x00, 0x01},
		[]byte{body[4], byte(len(text))},
		text,
	)
}

func (s *Simulator) read(body []byte) []byte {
	fn := body[1]
	if len(body) != 6 {
		return s.exception(fn, ExceptionIllegalValue)
	}

	addr, _ := frame.Uint16(body[2:4])
	count, _ := frame.Uint16(body[4:6])
	if count == 0 || count > 125 {
		return s.exception(fn, ExceptionIllegalValue)
	}

	data := make([]byte, 0, 2*count)
	for i := range count {
		v, ok := s.register(fn, addr+i)
		if !ok {
			return s.exception(fn, ExceptionIllegalAddress)
		}
		data = append(data, frame.PutUint16(v)...)
	}

	return frame.Build(s.profile.CRC, []byte{s.profile.Slave, fn, byte(len(data))}, data)
}

func (s *Simulator) register(fn byte, addr uint16) (uint16, bool) {
	if fn == frame.FuncReadHoldingRegisters {
		v, ok := s.holding[addr]
		return v, ok
	}

	switch addr {
	case RegInputValue:
		return uint16(s.input()), true //nolint:gosec
	case RegAmbient:
		return uint16(s.ambient), true //nolint:gosec
	default:
		return 0, false
	}
}

// input is the simulated input register: the output value in tenths, offset by
// the ambient temperature unless compensation is on.
func (s *Simulator) input() int16 {
	v := scaled(s.profile, float64(int16(s.holding[RegValue]))) //nolint:gosec
	if s.holding[RegCompensation] != 0 {
		return v
	}

	return clampInt16(int(v) + int(s.ambient))
}

func (s *Simulator) writeSingle(body []byte) []byte {
	if len(body) != 6 {
		return s.exception(body[1], ExceptionIllegalValue)
	}

	addr, _ := frame.Uint16(body[2:4])
	if _, ok := s.holding[addr]; !ok {
		return s.exception(body[1], ExceptionIllegalAddress)
	}
	s.holding[addr], _ = frame.Uint16(body[4:6])
	s.writes++

	return frame.Build(s.profile.CRC, body)
}

func (s *Simulator) writeMultiple(body []byte) []byte {
	fn := body[1]
	if len(body) < 7 {
		return s.exception(fn, ExceptionIllegalValue)
	}

	addr, _ := frame.Uint16(body[2:4])
	count, _ := frame.Uint16(body[4:6])
	values, err := frame.Uint16s(body[7:])
	if err != nil || int(body[6]) != len(body)-7 || len(values) != int(count) {
		return s.exception(fn, ExceptionIllegalValue)
	}

	for i := range count {
		if _, ok := s.holding[addr+i]; !ok {
			return s.exception(fn, ExceptionIllegalAddress)
		}
	}
	for i, v := range values {
		s.holding[addr+uint16(i)] = v //nolint:gosec
	}
	s.writes++

	return frame.Build(s.profile.CRC, body[:6])
}

func (s *Simulator) exception(fn, code byte) []byte {
	return frame.Build(s.profile.CRC, []byte{s.profile.Slave, fn | 0x80, code})
}

func scaled(p Profile, deg float64) int16 {
	scale := p.ReadingScale
	if scale == 0 {
		scale = 1
	}

	return clampInt16(int(math.Round(deg * scale)))
}

func clampInt16(v int) int16 {
	return int16(max(math.MinInt16, min(math.MaxInt16, v))) //nolint:gosec
}
