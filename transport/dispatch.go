package transport

import (
	"errors"
	"log/slog"

	"github.com/cyn4676086/multi-camera-sync/records"
	"github.com/cyn4676086/multi-camera-sync/wire"
)

// Topics that board records are published on.
const (
	TopicIMU = "imu_1"
	TopicGPS = "gps"
)

// handleLine decodes one line and hands the frame to exactly one consumer.
func (l *Link) handleLine(line []byte) {
	fr, err := wire.Decode(line)
	switch {
	case errors.Is(err, wire.ErrMissingTag), errors.Is(err, wire.ErrUnknownTag):
		l.ignored.Add(1)
		return
	case err != nil:
		l.parseErrors.Add(1)
		l.obs.FrameDropped("malformed")
		slog.Warn("transport: dropping malformed frame", "channel", l.describe, "error", err, "bytes", len(line))
		return
	}

	if c, ok := l.frames[fr.Tag]; ok {
		c.Add(1)
	}
	l.obs.FrameReceived(string(fr.Tag))
	l.dispatch(fr)
}

func (l *Link) dispatch(fr wire.Frame) {
	switch fr.Tag {
	case wire.TagClockA:
		l.engine.HandleRequest(fr.A, fr.B)

	case wire.TagClockB:
		if _, _, err := l.engine.HandleResponse(fr.A); err != nil {
			l.ioErrors.Add(1)
			l.obs.IOError(ClassifyIOError(err).String())
			slog.Warn("transport: clock reply failed", "channel", l.describe, "error", err)
		}

	case wire.TagTrigger:
		if l.registry != nil {
			l.registry.SetLastStatus(fr.TimeUS, fr.Mask)
		}

	case wire.TagIMU:
		rec := records.IMU{
			TimeUS:      fr.TimeUS,
			Temperature: fr.IMU[6],
			Accel:       [3]float32{fr.IMU[0], fr.IMU[1], fr.IMU[2]},
			Gyro:        [3]float32{fr.IMU[3], fr.IMU[4], fr.IMU[5]},
			Quat:        fr.Quat,
			Name:        TopicIMU,
		}
		l.publish(TopicIMU, rec)

	case wire.TagGPS:
		rec := records.GPS{
			TimeUS:    fr.TimeUS,
			TriggerUS: fr.PPSUS,
			Name:      TopicGPS,
			Sentence:  fr.Sentence,
		}
		l.publish(TopicGPS, rec)

	case wire.TagLog:
		remoteLog(fr.Level, fr.Message)
	}
}

type binaryRecord interface {
	MarshalBinary() ([]byte, error)
}

func (l *Link) publish(topic string, rec binaryRecord) {
	if l.pub == nil {
		return
	}
	payload, err := rec.MarshalBinary()
	if err != nil {
		slog.Warn("transport: encode record failed", "topic", topic, "error", err)
		return
	}
	if err := l.pub.Publish(topic, payload); err != nil {
		slog.Debug("transport: publish failed", "topic", topic, "error", err)
	}
}

// remoteLog relays a board log line. Severity 0 and above is info, -1 warn,
// anything lower error. Nothing the board sends is treated as fatal.
func remoteLog(level int, msg string) {
	switch {
	case level >= 0:
		slog.Info("transport: board log", "level", level, "msg", msg)
	case level == -1:
		slog.Warn("transport: board log", "level", level, "msg", msg)
	default:
		slog.Error("transport: board log", "level", level, "msg", msg)
	}
}
