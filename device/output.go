package device

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-tempsim/frame"
)

// ErrInvalidConfig matches every *ConfigError.
var ErrInvalidConfig = errors.New("device: invalid configuration")

// ConfigError reports a configuration value rejected before anything was sent.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("device: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Is makes ConfigError match ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// OutputConfig is the block of holding registers written by SendOutputConfig,
// starting at RegSensorType.
type OutputConfig struct {
	Sensor       Sensor
	Group        string
	SensorType   uint16
	Mode         uint16
	Value        int16
	Compensation bool
	// GroupCode is validated and kept for reference; the instrument does not
	// receive it.
	GroupCode uint16
}

// Registers returns the register values in wire order.
func (c OutputConfig) Registers() []uint16 {
	comp := uint16(0)
	if c.Compensation {
		comp = 1
	}

	return []uint16{c.SensorType, c.Mode, uint16(c.Value), comp} //nolint:gosec
}

// NewOutputConfig validates an output request against the profile.
func (p Profile) NewOutputConfig(sensor Sensor, value int, group string, compensation bool) (OutputConfig, error) {
	code, ok := p.GroupCode(group)
	if !ok {
		return OutputConfig{}, &ConfigError{Field: "group", Value: group, Reason: fmt.Sprintf("must be one of %v", p.groups)}
	}

	r, ok := p.SensorRange(sensor)
	if !ok {
		return OutputConfig{}, &ConfigError{Field: "sensor", Value: sensor, Reason: "unsupported sensor type"}
	}

	if value < r.Min || value > r.Max {
		return OutputConfig{}, &ConfigError{
			Field:  "value",
			Value:  value,
			Reason: fmt.Sprintf("out of range [%d, %d] for sensor %s", r.Min, r.Max, sensor),
		}
	}

	return OutputConfig{
		Sensor:       sensor,
		Group:        group,
		SensorType:   r.Code,
		Mode:         0,
		Value:        int16(value), //nolint:gosec
		Compensation: compensation,
		GroupCode:    code,
	}, nil
}

// WriteOutputFrame builds the write-multiple-registers request for c.
func (p Profile) WriteOutputFrame(c OutputConfig) frame.Frame {
	return frame.WriteMultipleRegisters(p.CRC, p.Slave, RegSensorType, c.Registers())
}

// WriteOutputReply returns the acknowledgement pattern for WriteOutputFrame.
func (p Profile) WriteOutputReply() *frame.Pattern {
	return frame.WriteMultipleRegistersReply(p.CRC, p.Slave, RegSensorType, 4)
}
