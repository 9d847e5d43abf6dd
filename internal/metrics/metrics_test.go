package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cyn4676086/multi-camera-sync/clocksync"
	"github.com/cyn4676086/multi-camera-sync/eventbus"
	"github.com/cyn4676086/multi-camera-sync/trigger"
)

func TestLinkMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FrameReceived("t")
	m.FrameReceived("t")
	m.FrameReceived("imu")
	m.FrameDropped("overflow")
	m.IOError("timeout")
	m.BeaconSent()

	if got := testutil.ToFloat64(m.frames.WithLabelValues("t")); got != 2 {
		t.Fatalf("expected 2 trigger frames, got %f", got)
	}
	if got := testutil.ToFloat64(m.frames.WithLabelValues("imu")); got != 1 {
		t.Fatalf("expected 1 imu frame, got %f", got)
	}
	if got := testutil.ToFloat64(m.dropped.WithLabelValues("overflow")); got != 1 {
		t.Fatalf("expected 1 dropped frame, got %f", got)
	}
	if got := testutil.ToFloat64(m.ioErrors.WithLabelValues("timeout")); got != 1 {
		t.Fatalf("expected 1 io error, got %f", got)
	}
	if got := testutil.ToFloat64(m.beacons); got != 1 {
		t.Fatalf("expected 1 beacon, got %f", got)
	}
}

func TestClockMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveClock(clocksync.Estimate{DelayUS: 12, OffsetUS: -2})

	if got := testutil.ToFloat64(m.clockDelay); got != 12 {
		t.Fatalf("expected delay 12, got %f", got)
	}
	if got := testutil.ToFloat64(m.clockOffset); got != -2 {
		t.Fatalf("expected offset -2, got %f", got)
	}
	if got := testutil.ToFloat64(m.estimates); got != 1 {
		t.Fatalf("expected 1 estimate, got %f", got)
	}
}

func TestBusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := eventbus.New(eventbus.Config{})
	defer b.Close()
	RegisterBus(reg, b)

	if err := b.Publish("cam_1", []byte{1}); err != nil {
		t.Fatal(err)
	}

	expected := `
# HELP mcs_bus_published_total Messages accepted by the bus.
# TYPE mcs_bus_published_total counter
mcs_bus_published_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "mcs_bus_published_total"); err != nil {
		t.Fatal(err)
	}
}

func TestTriggerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := trigger.NewRegistry(nil)
	RegisterTriggers(reg, r)
	r.SetLastStatus(4242, trigger.Cam2.Bit())

	n, err := testutil.GatherAndCount(reg, "mcs_trigger_last_time_microseconds")
	if err != nil {
		t.Fatal(err)
	}
	if n != trigger.NumDevices {
		t.Fatalf("expected %d series, got %d", trigger.NumDevices, n)
	}

	expected := `
# HELP mcs_trigger_last_time_microseconds Board time of the device's last trigger edge.
# TYPE mcs_trigger_last_time_microseconds gauge
mcs_trigger_last_time_microseconds{device="cam_1"} -1
mcs_trigger_last_time_microseconds{device="cam_2"} 4242
mcs_trigger_last_time_microseconds{device="cam_3"} -1
mcs_trigger_last_time_microseconds{device="cam_4"} -1
mcs_trigger_last_time_microseconds{device="gps"} -1
mcs_trigger_last_time_microseconds{device="imu_1"} -1
mcs_trigger_last_time_microseconds{device="imu_2"} -1
mcs_trigger_last_time_microseconds{device="laser"} -1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "mcs_trigger_last_time_microseconds"); err != nil {
		t.Fatal(err)
	}
}
