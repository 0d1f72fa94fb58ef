package device

import (
	"slices"
	"time"

	"github.com/arloliu/go-tempsim/checksum"
	"github.com/arloliu/go-tempsim/frame"
	"github.com/arloliu/go-tempsim/transport"
)

// Sensor is a thermocouple type.
type Sensor string

const (
	SensorJ Sensor = "J"
	SensorK Sensor = "K"
)

// SensorRange is the output range the instrument accepts for one sensor type.
type SensorRange struct {
	Sensor Sensor
	Code   uint16
	Min    int
	Max    int
}

// Holding and input register addresses.
const (
	RegSensorType   uint16 = 0x2002
	RegMode         uint16 = 0x2003
	RegValue        uint16 = 0x2004
	RegCompensation uint16 = 0x2005
	RegInputValue   uint16 = 0x3001
	RegAmbient      uint16 = 0x3002
)

// VendorGroup names the capture group that holds the firmware text in the
// probe response.
const VendorGroup = "vendor"

// Profile holds the constants of one instrument variant. Profiles are values;
// use the accessor methods to get copies of the slice fields.
type Profile struct {
	Slave byte
	CRC   checksum.Config
	Mode  transport.Mode

	// DeviceIDObject is the object requested by the identification probe.
	DeviceIDObject byte

	sensors []SensorRange
	groups  []string

	// MaxAttempts and ReadTimeout bound every request.
	MaxAttempts int
	ReadTimeout time.Duration
	// AwaitTimeout bounds how long an operation waits for its request.
	AwaitTimeout time.Duration
	// SettleDelay is how long the instrument needs after a compensation change.
	SettleDelay time.Duration
	// ReadingScale divides raw input register values into degrees.
	ReadingScale float64
	// CompensationSettleValue is the output value written when toggling compensation.
	CompensationSettleValue int
}

// TempSimProfile returns the profile of the temperature simulator.
func TempSimProfile() Profile {
	return Profile{
		Slave:          0x01,
		CRC:            checksum.Modbus,
		Mode:           transport.DefaultMode,
		DeviceIDObject: 0x01,
		sensors: []SensorRange{
			{Sensor: SensorJ, Code: 0, Min: -10, Max: 760},
			{Sensor: SensorK, Code: 1, Min: 10, Max: 1150},
		},
		groups:                  []string{"A", "B", "C", "D", "E", "F", "G", "H"},
		MaxAttempts:             10,
		ReadTimeout:             100 * time.Millisecond,
		AwaitTimeout:            time.Second,
		SettleDelay:             3 * time.Second,
		ReadingScale:            10,
		CompensationSettleValue: 10,
	}
}

// Sensors returns the supported sensor ranges.
func (p Profile) Sensors() []SensorRange {
	return slices.Clone(p.sensors)
}

// Groups returns the valid output group names, in code order.
func (p Profile) Groups() []string {
	return slices.Clone(p.groups)
}

// SensorRange looks up a sensor by type.
func (p Profile) SensorRange(s Sensor) (SensorRange, bool) {
	for _, r := range p.sensors {
		if r.Sensor == s {
			return r, true
		}
	}

	return SensorRange{}, false
}

// SensorByCode looks up a sensor by its register code.
func (p Profile) SensorByCode(code uint16) (SensorRange, bool) {
	for _, r := range p.sensors {
		if r.Code == code {
			return r, true
		}
	}

	return SensorRange{}, false
}

// GroupCode returns the register code of an output group.
func (p Profile) GroupCode(group string) (uint16, bool) {
	i := slices.Index(p.groups, group)
	if i < 0 {
		return 0, false
	}

	return uint16(i), true //nolint:gosec
}

// Probe returns the identification request used for discovery.
func (p Profile) Probe() frame.Frame {
	return frame.ReadDeviceID(p.CRC, p.Slave, p.DeviceIDObject)
}

// ProbeResponse returns the pattern of the identification reply. The firmware
// text is captured as VendorGroup.
func (p Profile) ProbeResponse() *frame.Pattern {
	return frame.NewPattern(
		frame.Fixed(p.Slave, frame.FuncEncapsulatedInterface, frame.MEIReadDeviceID, frame.ReadDeviceIDSpecific),
		frame.Fixed(0x81, 0x00, 0x00, 0x01),
		frame.Capture("objectID", 1),
		frame.Counted(VendorGroup),
	).WithCRC(p.CRC)
}
