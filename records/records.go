package records

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// NameSize is the width of the NUL-padded name field in every record.
const NameSize = 32

var (
	// ErrShortPayload is returned when a payload is smaller than its layout.
	ErrShortPayload = errors.New("records: payload too short")

	// ErrFieldTooLong is returned when a variable-length field does not fit its length prefix.
	ErrFieldTooLong = errors.New("records: field too long")
)

var order = binary.NativeEndian

// Wire sizes of the fixed parts of each layout.
const (
	DeviceStatusSize = 16
	IMUSize          = 8 + 4 + 3*4 + 3*4 + 4*4 + NameSize
	LaserSize        = 8 + NameSize
	gpsHeaderSize    = 8 + 8 + NameSize + 2
	cameraHeaderSize = 8 + NameSize + 4 + 4 + 4 + 4
)

// DeviceStatus is published on a trigger device topic each time the device fires.
// Layout matches the C struct {uint64_t; bool} including its 7 padding bytes.
type DeviceStatus struct {
	TimeUS uint64
	Status bool
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (d DeviceStatus) MarshalBinary() ([]byte, error) {
	b := make([]byte, DeviceStatusSize)
	order.PutUint64(b[0:8], d.TimeUS)
	if d.Status {
		b[8] = 1
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *DeviceStatus) UnmarshalBinary(b []byte) error {
	if len(b) < 9 {
		return fmt.Errorf("device status: %w (got %d bytes)", ErrShortPayload, len(b))
	}
	d.TimeUS = order.Uint64(b[0:8])
	d.Status = b[8] != 0
	return nil
}

// IMU is one inertial sample as reported by the trigger board.
type IMU struct {
	TimeUS      uint64
	Temperature float32
	Accel       [3]float32
	Gyro        [3]float32
	Quat        [4]float32
	Name        string
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m IMU) MarshalBinary() ([]byte, error) {
	b := make([]byte, IMUSize)
	order.PutUint64(b[0:8], m.TimeUS)
	off := 8
	off = putFloat32(b, off, m.Temperature)
	for _, v := range m.Accel {
		off = putFloat32(b, off, v)
	}
	for _, v := range m.Gyro {
		off = putFloat32(b, off, v)
	}
	for _, v := range m.Quat {
		off = putFloat32(b, off, v)
	}
	putName(b[off:off+NameSize], m.Name)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *IMU) UnmarshalBinary(b []byte) error {
	if len(b) < IMUSize {
		return fmt.Errorf("imu: %w (got %d, want %d)", ErrShortPayload, len(b), IMUSize)
	}
	m.TimeUS = order.Uint64(b[0:8])
	off := 8
	m.Temperature, off = getFloat32(b, off)
	for i := range m.Accel {
		m.Accel[i], off = getFloat32(b, off)
	}
	for i := range m.Gyro {
		m.Gyro[i], off = getFloat32(b, off)
	}
	for i := range m.Quat {
		m.Quat[i], off = getFloat32(b, off)
	}
	m.Name = getName(b[off : off+NameSize])
	return nil
}

// Laser marks a laser pulse.
type Laser struct {
	TimeUS uint64
	Name   string
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (l Laser) MarshalBinary() ([]byte, error) {
	b := make([]byte, LaserSize)
	order.PutUint64(b[0:8], l.TimeUS)
	putName(b[8:8+NameSize], l.Name)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (l *Laser) UnmarshalBinary(b []byte) error {
	if len(b) < LaserSize {
		return fmt.Errorf("laser: %w (got %d, want %d)", ErrShortPayload, len(b), LaserSize)
	}
	l.TimeUS = order.Uint64(b[0:8])
	l.Name = getName(b[8 : 8+NameSize])
	return nil
}

// GPS carries one NMEA sentence and the PPS edge it was latched against.
type GPS struct {
	TimeUS    uint64
	TriggerUS uint64
	Name      string
	Sentence  string
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (g GPS) MarshalBinary() ([]byte, error) {
	if len(g.Sentence) > math.MaxUint16 {
		return nil, fmt.Errorf("gps sentence: %w (%d bytes)", ErrFieldTooLong, len(g.Sentence))
	}
	b := make([]byte, gpsHeaderSize+len(g.Sentence))
	order.PutUint64(b[0:8], g.TimeUS)
	order.PutUint64(b[8:16], g.TriggerUS)
	putName(b[16:16+NameSize], g.Name)
	order.PutUint16(b[16+NameSize:gpsHeaderSize], uint16(len(g.Sentence)))
	copy(b[gpsHeaderSize:], g.Sentence)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (g *GPS) UnmarshalBinary(b []byte) error {
	if len(b) < gpsHeaderSize {
		return fmt.Errorf("gps: %w (got %d, want %d)", ErrShortPayload, len(b), gpsHeaderSize)
	}
	n := int(order.Uint16(b[16+NameSize : gpsHeaderSize]))
	if len(b) < gpsHeaderSize+n {
		return fmt.Errorf("gps sentence: %w (got %d, want %d)", ErrShortPayload, len(b)-gpsHeaderSize, n)
	}
	g.TimeUS = order.Uint64(b[0:8])
	g.TriggerUS = order.Uint64(b[8:16])
	g.Name = getName(b[16 : 16+NameSize])
	g.Sentence = string(b[gpsHeaderSize : gpsHeaderSize+n])
	return nil
}

// Camera describes one captured frame. Image may be nil for drivers that only
// report timing.
type Camera struct {
	TimeUS uint64
	Name   string
	Image  *Image
}

// MarshalBinary implements encoding.BinaryMarshaler. Pixel bytes follow the
// descriptor header.
func (c Camera) MarshalBinary() ([]byte, error) {
	var rows, cols, n int
	var typ int32
	var pixels []byte
	if c.Image != nil && !c.Image.Empty() {
		rows, cols, typ = c.Image.Rows(), c.Image.Cols(), c.Image.Type()
		pixels = c.Image.Bytes()
		n = len(pixels)
	}
	if uint64(n) > math.MaxUint32 {
		return nil, fmt.Errorf("camera image: %w (%d bytes)", ErrFieldTooLong, n)
	}

	b := make([]byte, cameraHeaderSize+n)
	order.PutUint64(b[0:8], c.TimeUS)
	off := 8
	putName(b[off:off+NameSize], c.Name)
	off += NameSize
	order.PutUint32(b[off:], uint32(rows))
	order.PutUint32(b[off+4:], uint32(cols))
	order.PutUint32(b[off+8:], uint32(typ))
	order.PutUint32(b[off+12:], uint32(n))
	copy(b[cameraHeaderSize:], pixels)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. The pixels are copied
// into a fresh aligned Image owned by the caller.
func (c *Camera) UnmarshalBinary(b []byte) error {
	if len(b) < cameraHeaderSize {
		return fmt.Errorf("camera: %w (got %d, want %d)", ErrShortPayload, len(b), cameraHeaderSize)
	}
	c.TimeUS = order.Uint64(b[0:8])
	off := 8
	c.Name = getName(b[off : off+NameSize])
	off += NameSize
	rows := int(order.Uint32(b[off:]))
	cols := int(order.Uint32(b[off+4:]))
	typ := int32(order.Uint32(b[off+8:]))
	n := int(order.Uint32(b[off+12:]))
	if len(b) < cameraHeaderSize+n {
		return fmt.Errorf("camera image: %w (got %d, want %d)", ErrShortPayload, len(b)-cameraHeaderSize, n)
	}

	c.Image = nil
	if n == 0 {
		return nil
	}
	img, err := NewImage(rows, cols, typ, b[cameraHeaderSize:cameraHeaderSize+n])
	if err != nil {
		return fmt.Errorf("camera image: %w", err)
	}
	c.Image = img
	return nil
}

func putName(dst []byte, name string) {
	copy(dst, name)
}

func getName(src []byte) string {
	for i, c := range src {
		if c == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}

func putFloat32(b []byte, off int, v float32) int {
	order.PutUint32(b[off:], math.Float32bits(v))
	return off + 4
}

func getFloat32(b []byte, off int) (float32, int) {
	return math.Float32frombits(order.Uint32(b[off:])), off + 4
}
