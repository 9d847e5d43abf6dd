package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyn4676086/multi-camera-sync/trigger"
)

const netYAML = `
link:
  net:
    ip: 192.168.1.188
    port: 8888
sensor:
  params:
    cam_front: cam_1
    lidar: LASER
`

func TestLoadFileWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(netYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Link.Net)
	assert.Nil(t, cfg.Link.Serial)
	assert.Equal(t, "192.168.1.188", cfg.Link.Net.IP)
	assert.Equal(t, 8888, cfg.Link.Net.Port)

	require.NotNil(t, cfg.WarmupMS)
	assert.Equal(t, 2000, *cfg.WarmupMS)
	assert.Equal(t, 2*time.Second, cfg.Warmup())
	assert.Equal(t, 500, cfg.RestartPauseMS)
	assert.Equal(t, 5, cfg.ShutdownTimeoutS)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "mcs", cfg.MQTT.TopicPrefix)

	require.NotNil(t, cfg.Sensor)
	assert.Equal(t, "synthetic", cfg.Sensor.Kind)
	assert.Equal(t, 100.0, cfg.Sensor.RateHz)
	assert.Equal(t, map[string]trigger.Device{"cam_front": trigger.Cam1, "lidar": trigger.Laser}, cfg.Sensor.Params)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MCS_NET_PORT", "9999")
	t.Setenv("MCS_LOG_PATH", "/tmp/mcs.log")
	t.Setenv("MCS_MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MCS_HEALTH_ADDR", ":9090")

	cfg, err := Parse([]byte(netYAML))
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.188", cfg.Link.Net.IP)
	assert.Equal(t, 9999, cfg.Link.Net.Port)
	assert.Equal(t, "/tmp/mcs.log", cfg.LogPath)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, ":9090", cfg.HealthAddr)
}

func TestEnvOnly(t *testing.T) {
	t.Setenv("MCS_SERIAL_DEVICE", "/dev/ttyACM0")
	t.Setenv("MCS_SERIAL_BAUD", "921600")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg.Link.Serial)
	assert.Equal(t, SerialConfig{Device: "/dev/ttyACM0", Baud: 921600}, *cfg.Link.Serial)
	assert.Nil(t, cfg.Sensor)
}

func TestEnvSerialConflictsWithFileNet(t *testing.T) {
	t.Setenv("MCS_SERIAL_DEVICE", "/dev/ttyACM0")
	t.Setenv("MCS_SERIAL_BAUD", "921600")

	_, err := Parse([]byte(netYAML))
	assert.ErrorIs(t, err, ErrLinkChoice)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"no link", `warmup_ms: 10`, true},
		{"both links", "link:\n  net: {ip: 10.0.0.1, port: 1}\n  serial: {device: /dev/ttyUSB0, baud: 115200}", true},
		{"bad ip", "link:\n  net: {ip: board, port: 8888}", true},
		{"bad port", "link:\n  net: {ip: 10.0.0.1, port: 70000}", true},
		{"serial without baud", "link:\n  serial: {device: /dev/ttyUSB0}", true},
		{"serial", "link:\n  serial: {device: /dev/ttyUSB0, baud: 115200}", false},
		{"bad qos", "link:\n  net: {ip: 10.0.0.1, port: 1}\nmqtt: {qos: 3}", true},
		{"bad log format", "link:\n  net: {ip: 10.0.0.1, port: 1}\nlog_format: xml", true},
		{"unknown sensor kind", "link:\n  net: {ip: 10.0.0.1, port: 1}\nsensor: {kind: gige, params: {c: cam_1}}", true},
		{"sensor without params", "link:\n  net: {ip: 10.0.0.1, port: 1}\nsensor: {kind: synthetic}", true},
		{"unknown device", "link:\n  net: {ip: 10.0.0.1, port: 1}\nsensor: {params: {c: cam_9}}", true},
		{"negative warmup", "link:\n  net: {ip: 10.0.0.1, port: 1}\nwarmup_ms: -1", true},
		{"negative forward queue", "link:\n  net: {ip: 10.0.0.1, port: 1}\nbus: {forward_queue_size: -1}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestZeroWarmupSkips(t *testing.T) {
	cfg, err := Parse([]byte("link:\n  net: {ip: 10.0.0.1, port: 1}\nwarmup_ms: 0"))
	require.NoError(t, err)
	require.NotNil(t, cfg.WarmupMS)
	assert.Equal(t, 0, *cfg.WarmupMS)
	assert.Zero(t, cfg.Warmup())

	cfg, err = Parse([]byte("link:\n  net: {ip: 10.0.0.1, port: 1}\nwarmup_ms: 150"))
	require.NoError(t, err)
	assert.Equal(t, 150*time.Millisecond, cfg.Warmup())
}
