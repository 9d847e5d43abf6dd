package trigger

import (
	"fmt"
	"strings"
)

// Device is one of the eight physical trigger inputs on the board. Its value
// is also its bit position in a status mask.
type Device uint8

const (
	IMU1 Device = iota
	IMU2
	Cam1
	Cam2
	Cam3
	Cam4
	Laser
	GPS

	// NumDevices is the number of trigger inputs.
	NumDevices = 8
)

var deviceNames = [NumDevices]string{
	"imu_1", "imu_2", "cam_1", "cam_2", "cam_3", "cam_4", "laser", "gps",
}

// Devices lists every device in bit order.
func Devices() []Device {
	out := make([]Device, NumDevices)
	for i := range out {
		out[i] = Device(i)
	}
	return out
}

// String returns the lowercase device name, e.g. "cam_1".
func (d Device) String() string {
	if d >= NumDevices {
		return fmt.Sprintf("device(%d)", uint8(d))
	}
	return deviceNames[d]
}

// Topic returns the bus topic device status events are published on.
func (d Device) Topic() string {
	return d.String() + "_trigger"
}

// Bit returns the device's mask bit.
func (d Device) Bit() uint8 {
	return 1 << d
}

// ParseDevice accepts "cam_1", "CAM_1" or "cam1".
func ParseDevice(name string) (Device, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, dn := range deviceNames {
		if n == dn || n == strings.ReplaceAll(dn, "_", "") {
			return Device(i), nil
		}
	}
	return 0, fmt.Errorf("trigger: unknown device %q", name)
}

// UnmarshalText lets devices appear by name in YAML config.
func (d *Device) UnmarshalText(text []byte) error {
	v, err := ParseDevice(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Device) MarshalText() ([]byte, error) {
	if d >= NumDevices {
		return nil, fmt.Errorf("trigger: invalid device %d", uint8(d))
	}
	return []byte(d.String()), nil
}
