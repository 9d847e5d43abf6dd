package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.bug.st/serial"

	"github.com/cyn4676086/multi-camera-sync/clocksync"
)

// Channel is a byte pipe to the board. Read must return within the
// configured read timeout; a timeout is reported as (0, nil).
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) error
	Close() error
	Describe() string
}

// Handshaker is implemented by channels that announce themselves to the
// board when a link first starts.
type Handshaker interface {
	Handshake() error
}

// Packeted is implemented by channels where each Read returns one whole
// datagram. Unterminated trailing data is then treated as a complete line.
type Packeted interface {
	Packeted() bool
}

// Dialer opens the channel described by a Config.
type Dialer func(Config) (Channel, error)

// Open is the default Dialer.
func Open(cfg Config) (Channel, error) {
	switch cfg.Kind {
	case KindNet:
		return OpenUDP(cfg)
	case KindSerial:
		return OpenSerial(cfg)
	}
	return nil, fmt.Errorf("transport: unknown link kind %q", cfg.Kind)
}

// UDPChannel exchanges datagrams with one peer.
type UDPChannel struct {
	conn        *net.UDPConn
	peer        *net.UDPAddr
	readTimeout time.Duration
}

// OpenUDP binds a local socket and resolves the board address.
func OpenUDP(cfg Config) (*UDPChannel, error) {
	peer, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.Address, fmt.Sprint(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", cfg.Address, err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.LocalPort})
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp: %w", err)
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &UDPChannel{conn: conn, peer: peer, readTimeout: timeout}, nil
}

func (c *UDPChannel) Read(p []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return 0, err
	}
	n, _, err := c.conn.ReadFromUDP(p)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() || errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil
		}
		return n, err
	}
	return n, nil
}

func (c *UDPChannel) Write(p []byte) error {
	_, err := c.conn.WriteToUDP(p, c.peer)
	return err
}

// Handshake sends the raw 8-byte native-endian time since boot in
// microseconds. The board uses it to learn the host address and a coarse
// time hint.
func (c *UDPChannel) Handshake() error {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], clocksync.MonotonicMicros())
	return c.Write(b[:])
}

func (c *UDPChannel) Packeted() bool { return true }

func (c *UDPChannel) Close() error { return c.conn.Close() }

func (c *UDPChannel) Describe() string {
	return fmt.Sprintf("udp %s -> %s", c.conn.LocalAddr(), c.peer)
}

// LocalAddr returns the bound socket address.
func (c *UDPChannel) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// SerialChannel reads newline-delimited frames from a serial port.
type SerialChannel struct {
	port   serial.Port
	device string
	baud   int
}

// OpenSerial opens the device at the configured baud rate with 8N1 framing.
func OpenSerial(cfg Config) (*SerialChannel, error) {
	port, err := serial.Open(cfg.Device, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Device, err)
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: set read timeout on %s: %w", cfg.Device, err)
	}
	return &SerialChannel{port: port, device: cfg.Device, baud: cfg.BaudRate}, nil
}

func (c *SerialChannel) Read(p []byte) (int, error) { return c.port.Read(p) }

func (c *SerialChannel) Write(p []byte) error {
	for len(p) > 0 {
		n, err := c.port.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (c *SerialChannel) Close() error { return c.port.Close() }

func (c *SerialChannel) Describe() string {
	return fmt.Sprintf("serial %s@%d", c.device, c.baud)
}
