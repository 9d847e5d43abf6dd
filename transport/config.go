package transport

import (
	"errors"
	"fmt"
	"time"
)

// Kind selects the physical channel.
type Kind string

const (
	KindNet    Kind = "net"
	KindSerial Kind = "serial"
)

// Defaults applied to zero Config fields.
const (
	DefaultReadTimeout    = 100 * time.Millisecond
	DefaultBeaconInterval = 100 * time.Millisecond
	DefaultIdleSleep      = time.Millisecond
	DefaultSerialTimeout  = time.Second
)

// Config describes one link.
type Config struct {
	Kind Kind

	// net
	Address   string
	Port      int
	LocalPort int // 0 picks an ephemeral port

	// serial
	Device   string
	BaudRate int

	ReadTimeout    time.Duration
	BeaconInterval time.Duration
	IdleSleep      time.Duration
}

// NetConfig returns a UDP link config for the board at ip:port.
func NetConfig(ip string, port int) Config {
	return Config{Kind: KindNet, Address: ip, Port: port}
}

// SerialConfig returns a serial link config.
func SerialConfig(device string, baud int) Config {
	return Config{Kind: KindSerial, Device: device, BaudRate: baud}
}

func (c *Config) applyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
		if c.Kind == KindSerial {
			c.ReadTimeout = DefaultSerialTimeout
		}
	}
	if c.BeaconInterval <= 0 {
		c.BeaconInterval = DefaultBeaconInterval
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = DefaultIdleSleep
	}
}

// Validate checks the fields required by Kind.
func (c Config) Validate() error {
	switch c.Kind {
	case KindNet:
		if c.Address == "" {
			return errors.New("transport: net link requires an address")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("transport: invalid port %d", c.Port)
		}
	case KindSerial:
		if c.Device == "" {
			return errors.New("transport: serial link requires a device")
		}
		if c.BaudRate <= 0 {
			return fmt.Errorf("transport: invalid baud rate %d", c.BaudRate)
		}
	default:
		return fmt.Errorf("transport: unknown link kind %q", c.Kind)
	}
	return nil
}

// String describes the endpoint for logs.
func (c Config) String() string {
	if c.Kind == KindSerial {
		return fmt.Sprintf("serial %s@%d", c.Device, c.BaudRate)
	}
	return fmt.Sprintf("udp %s:%d", c.Address, c.Port)
}
