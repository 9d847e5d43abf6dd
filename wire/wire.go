// Package wire encodes and decodes the newline-delimited JSON frames
// exchanged with the trigger board.
//
// Every frame is a flat JSON object with a discriminator field "f":
//
//	{"f":"t","t":<time_us>,"s":<mask>}          trigger status
//	{"f":"a","a":<t1>,"b":<t2>}                 clock sync, phase A
//	{"f":"b","a":<t3>}                          clock sync, phase B
//	{"f":"imu","t":<time_us>,"d":[7],"q":[4]}   IMU sample
//	{"f":"GNGGA","d":"$GNGGA...","pps":<us>,"t":<us>}
//	{"f":"log","l":<severity>,"msg":"..."}
//
// Outbound, the host only sends phase A beacons and phase B replies.
package wire

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Tag is the value of a frame's "f" field.
type Tag string

const (
	// TagTrigger is a trigger status frame: latch time and device bitmask.
	TagTrigger Tag = "t"
	// TagClockA is clock sync phase A: the host sends its time, the board
	// echoes it (t1) with its receive time (t2).
	TagClockA Tag = "a"
	// TagClockB is clock sync phase B: the board's send time (t3).
	TagClockB Tag = "b"
	// TagIMU is an IMU sample.
	TagIMU Tag = "imu"
	// TagGPS is a GNGGA fix.
	TagGPS Tag = "GNGGA"
	// TagLog is a diagnostic line from the board firmware.
	TagLog Tag = "log"
)

var (
	// ErrMalformed is returned for input that is not a JSON object or lacks a
	// field its tag requires.
	ErrMalformed = errors.New("wire: malformed frame")

	// ErrMissingTag is returned when the "f" field is absent.
	ErrMissingTag = errors.New("wire: missing discriminator")

	// ErrUnknownTag is returned when "f" names no known frame.
	ErrUnknownTag = errors.New("wire: unknown discriminator")
)

// Frame is one decoded message. Only the fields of its Tag are set.
type Frame struct {
	Tag Tag

	// t, imu, GNGGA
	TimeUS uint64

	// t
	Mask uint8

	// a: A=t1 B=t2. b: A=t3.
	A, B uint64

	// imu: ax ay az gx gy gz temp, then quaternion
	IMU  [7]float32
	Quat [4]float32

	// GNGGA
	Sentence string
	PPSUS    uint64

	// log
	Level   int
	Message string
}

// Decode parses one line. Unknown and missing tags are reported with
// ErrUnknownTag and ErrMissingTag so callers can tell them apart from
// malformed input.
func Decode(line []byte) (Frame, error) {
	if !gjson.ValidBytes(line) {
		return Frame{}, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		return Frame{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	f := root.Get("f")
	if !f.Exists() {
		return Frame{}, ErrMissingTag
	}

	fr := Frame{Tag: Tag(f.String())}
	var err error
	switch fr.Tag {
	case TagTrigger:
		fr.TimeUS, err = requireUint(root, "t")
		if err == nil {
			var s uint64
			s, err = requireUint(root, "s")
			fr.Mask = uint8(s)
		}
	case TagClockA:
		fr.A, err = requireUint(root, "a")
		if err == nil {
			fr.B, err = requireUint(root, "b")
		}
	case TagClockB:
		fr.A, err = requireUint(root, "a")
	case TagIMU:
		fr.TimeUS, err = requireUint(root, "t")
		if err == nil {
			err = floats(root, "d", fr.IMU[:])
		}
		if err == nil {
			err = floats(root, "q", fr.Quat[:])
		}
	case TagGPS:
		d := root.Get("d")
		if d.Type != gjson.String {
			return fr, fmt.Errorf("%w: GNGGA without sentence", ErrMalformed)
		}
		fr.Sentence = d.String()
		fr.PPSUS, err = requireUint(root, "pps")
		if err == nil {
			fr.TimeUS, err = requireUint(root, "t")
		}
	case TagLog:
		l := root.Get("l")
		if l.Type != gjson.Number {
			return fr, fmt.Errorf("%w: log without level", ErrMalformed)
		}
		fr.Level = int(l.Int())
		fr.Message = root.Get("msg").String()
	default:
		return fr, fmt.Errorf("%w: %q", ErrUnknownTag, fr.Tag)
	}
	if err != nil {
		return fr, fmt.Errorf("%q frame: %w", fr.Tag, err)
	}
	return fr, nil
}

func requireUint(root gjson.Result, key string) (uint64, error) {
	v := root.Get(key)
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("%w: field %q", ErrMalformed, key)
	}
	return v.Uint(), nil
}

func floats(root gjson.Result, key string, dst []float32) error {
	arr := root.Get(key)
	if !arr.IsArray() {
		return fmt.Errorf("%w: field %q is not an array", ErrMalformed, key)
	}
	items := arr.Array()
	if len(items) < len(dst) {
		return fmt.Errorf("%w: field %q has %d values, want %d", ErrMalformed, key, len(items), len(dst))
	}
	for i := range dst {
		if items[i].Type != gjson.Number {
			return fmt.Errorf("%w: field %q[%d]", ErrMalformed, key, i)
		}
		dst[i] = float32(items[i].Float())
	}
	return nil
}

// EncodeBeacon returns the phase A frame {"f":"a","a":nowUS} plus newline.
func EncodeBeacon(nowUS uint64) []byte {
	out, _ := sjson.SetBytes([]byte(`{"f":"a"}`), "a", nowUS)
	return append(out, '\n')
}

// EncodeReply returns the phase B frame carrying the computed delay and
// offset, plus newline.
func EncodeReply(delayUS, offsetUS int64) []byte {
	out, _ := sjson.SetBytes([]byte(`{"f":"b"}`), "a", delayUS)
	out, _ = sjson.SetBytes(out, "b", offsetUS)
	return append(out, '\n')
}
