package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/cyn4676086/multi-camera-sync/trigger"
)

// Config is the complete service configuration.
type Config struct {
	Link   LinkConfig    `yaml:"link"`
	Bus    BusConfig     `yaml:"bus"`
	MQTT   MQTTConfig    `yaml:"mqtt"`
	Sensor *SensorConfig `yaml:"sensor,omitempty"`

	WarmupMS         *int   `yaml:"warmup_ms"`          // delay before the sensor starts (default 2000, 0 skips)
	RestartPauseMS   int    `yaml:"restart_pause_ms"`   // pause inside a sensor restart (default 500)
	ShutdownTimeoutS int    `yaml:"shutdown_timeout_s"` // default 5
	LogPath          string `yaml:"log_path"`           // extra log destination, empty for stdout only
	LogFormat        string `yaml:"log_format"`         // json, text
	HealthAddr       string `yaml:"health_addr"`        // empty disables the HTTP server
}

// LinkConfig selects exactly one of Net and Serial.
type LinkConfig struct {
	Net    *NetConfig    `yaml:"net,omitempty"`
	Serial *SerialConfig `yaml:"serial,omitempty"`

	BeaconIntervalMS int `yaml:"beacon_interval_ms"`
	ReadTimeoutMS    int `yaml:"read_timeout_ms"`
}

// NetConfig is a UDP link to the board.
type NetConfig struct {
	IP        string `yaml:"ip"`
	Port      int    `yaml:"port"`
	LocalPort int    `yaml:"local_port"`
}

// SerialConfig is a serial link to the board.
type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// BusConfig sizes the event bus queues.
type BusConfig struct {
	QueueSize        int `yaml:"queue_size"`
	InboxSize        int `yaml:"inbox_size"`
	ForwardQueueSize int `yaml:"forward_queue_size"`
}

// MQTTConfig enables the MQTT bridge when Broker is set.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// SensorConfig describes the capture adapter.
type SensorConfig struct {
	Kind   string                    `yaml:"kind"` // synthetic
	RateHz float64                   `yaml:"rate_hz"`
	Rows   int                       `yaml:"rows"`
	Cols   int                       `yaml:"cols"`
	Params map[string]trigger.Device `yaml:"params"` // record name -> trigger device, e.g. cam_1
}

// envOverrides are applied on top of the file.
type envOverrides struct {
	NetIP        string `env:"MCS_NET_IP"`
	NetPort      int    `env:"MCS_NET_PORT"`
	SerialDevice string `env:"MCS_SERIAL_DEVICE"`
	SerialBaud   int    `env:"MCS_SERIAL_BAUD"`
	LogPath      string `env:"MCS_LOG_PATH"`
	MQTTBroker   string `env:"MCS_MQTT_BROKER"`
	HealthAddr   string `env:"MCS_HEALTH_ADDR"`
}

// Load reads path, applies environment overrides and defaults, and
// validates the result. An empty path starts from an empty file so the
// environment alone can configure the service.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Warmup is the configured warm-up as a duration.
func (c *Config) Warmup() time.Duration {
	if c.WarmupMS == nil {
		return 0
	}
	return time.Duration(*c.WarmupMS) * time.Millisecond
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if o.NetIP != "" {
		if c.Link.Net == nil {
			c.Link.Net = &NetConfig{}
		}
		c.Link.Net.IP = o.NetIP
	}
	if o.NetPort != 0 {
		if c.Link.Net == nil {
			c.Link.Net = &NetConfig{}
		}
		c.Link.Net.Port = o.NetPort
	}
	if o.SerialDevice != "" {
		if c.Link.Serial == nil {
			c.Link.Serial = &SerialConfig{}
		}
		c.Link.Serial.Device = o.SerialDevice
	}
	if o.SerialBaud != 0 {
		if c.Link.Serial == nil {
			c.Link.Serial = &SerialConfig{}
		}
		c.Link.Serial.Baud = o.SerialBaud
	}
	if o.LogPath != "" {
		c.LogPath = o.LogPath
	}
	if o.MQTTBroker != "" {
		c.MQTT.Broker = o.MQTTBroker
	}
	if o.HealthAddr != "" {
		c.HealthAddr = o.HealthAddr
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.WarmupMS == nil {
		ms := 2000
		c.WarmupMS = &ms
	}
	if c.RestartPauseMS == 0 {
		c.RestartPauseMS = 500
	}
	if c.ShutdownTimeoutS == 0 {
		c.ShutdownTimeoutS = 5
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "mcs"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "multi-camera-sync"
	}
	if s := c.Sensor; s != nil {
		if s.Kind == "" {
			s.Kind = "synthetic"
		}
		if s.RateHz == 0 {
			s.RateHz = 100
		}
	}
}
