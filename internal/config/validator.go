package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/cyn4676086/multi-camera-sync/trigger"
)

// ErrLinkChoice is returned when the net and serial links are both set or
// both missing.
var ErrLinkChoice = errors.New("exactly one of link.net and link.serial is required")

// Validate checks the configuration.
func Validate(cfg *Config) error {
	nc, serial := cfg.Link.Net, cfg.Link.Serial
	if (nc == nil) == (serial == nil) {
		return ErrLinkChoice
	}

	if nc != nil {
		if err := validateNet(nc); err != nil {
			return err
		}
	}
	if serial != nil {
		if serial.Device == "" {
			return fmt.Errorf("link.serial.device is required")
		}
		if serial.Baud <= 0 {
			return fmt.Errorf("link.serial.baud must be > 0")
		}
	}

	if cfg.WarmupMS != nil && *cfg.WarmupMS < 0 {
		return fmt.Errorf("warmup_ms must be >= 0")
	}
	if cfg.Bus.QueueSize < 0 || cfg.Bus.InboxSize < 0 || cfg.Bus.ForwardQueueSize < 0 {
		return fmt.Errorf("bus queue sizes must be >= 0")
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format %q: must be json or text", cfg.LogFormat)
	}

	if cfg.Sensor != nil {
		if err := validateSensor(cfg.Sensor); err != nil {
			return fmt.Errorf("sensor: %w", err)
		}
	}
	return nil
}

func validateNet(n *NetConfig) error {
	if net.ParseIP(n.IP) == nil {
		return fmt.Errorf("link.net.ip %q is not an IP address", n.IP)
	}
	if n.Port <= 0 || n.Port > 65535 {
		return fmt.Errorf("link.net.port %d out of range", n.Port)
	}
	if n.LocalPort < 0 || n.LocalPort > 65535 {
		return fmt.Errorf("link.net.local_port %d out of range", n.LocalPort)
	}
	return nil
}

func validateSensor(s *SensorConfig) error {
	if s.Kind != "synthetic" {
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	if s.RateHz <= 0 {
		return fmt.Errorf("rate_hz must be > 0")
	}
	if len(s.Params) == 0 {
		return fmt.Errorf("params must map at least one name to a trigger device")
	}
	for name, d := range s.Params {
		if d >= trigger.NumDevices {
			return fmt.Errorf("param %q: invalid device %d", name, d)
		}
	}
	return nil
}
