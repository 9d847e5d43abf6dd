package eventbus

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT bridge.
type MQTTConfig struct {
	Broker         string // host:port or a full tcp:// URL
	ClientID       string
	TopicPrefix    string // default "mcs"
	QoS            byte
	ConnectTimeout time.Duration // default 5s
	PublishTimeout time.Duration // default 250ms
}

var errMQTTTimeout = errors.New("eventbus: mqtt timeout")

// MQTTBridge forwards bus messages to an MQTT broker as msgpack envelopes on
// "<prefix>/<topic>". Delivery is best effort: a failed publish is reported
// to the bus and not retried, and the client does not reconnect on its own.
type MQTTBridge struct {
	cfg    MQTTConfig
	client mqtt.Client

	connected atomic.Bool
}

// NewMQTTBridge connects to the broker.
func NewMQTTBridge(cfg MQTTConfig) (*MQTTBridge, error) {
	if cfg.Broker == "" {
		return nil, errors.New("eventbus: mqtt broker is required")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "mcs"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "multi-camera-sync"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 250 * time.Millisecond
	}

	br := &MQTTBridge{cfg: cfg}

	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.OnConnect = func(mqtt.Client) {
		br.connected.Store(true)
		slog.Info("eventbus: mqtt connected", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		br.connected.Store(false)
		slog.Warn("eventbus: mqtt connection lost", "broker", cfg.Broker, "error", err)
	}

	br.client = mqtt.NewClient(opts)
	token := br.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("%w: connecting to %s", errMQTTTimeout, cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("eventbus: mqtt connect: %w", err)
	}
	br.connected.Store(true)
	return br, nil
}

// Topic returns the MQTT topic a bus topic is bridged to.
func (br *MQTTBridge) Topic(busTopic string) string {
	return br.cfg.TopicPrefix + "/" + busTopic
}

// Forward implements Forwarder.
func (br *MQTTBridge) Forward(msg Message) error {
	if !br.connected.Load() {
		return errors.New("eventbus: mqtt not connected")
	}
	payload, err := EncodeEnvelope(msg)
	if err != nil {
		return err
	}
	token := br.client.Publish(br.Topic(msg.Topic), br.cfg.QoS, false, payload)
	if !token.WaitTimeout(br.cfg.PublishTimeout) {
		return fmt.Errorf("%w: publishing %s", errMQTTTimeout, msg.Topic)
	}
	return token.Error()
}

// Close implements Forwarder.
func (br *MQTTBridge) Close() error {
	if br.client.IsConnected() {
		br.client.Disconnect(250)
		slog.Info("eventbus: mqtt disconnected")
	}
	br.connected.Store(false)
	return nil
}
