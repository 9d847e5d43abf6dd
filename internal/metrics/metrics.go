// Package metrics exposes link, clock, trigger and bus counters to
// Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cyn4676086/multi-camera-sync/clocksync"
	"github.com/cyn4676086/multi-camera-sync/eventbus"
	"github.com/cyn4676086/multi-camera-sync/transport"
	"github.com/cyn4676086/multi-camera-sync/trigger"
)

const namespace = "mcs"

// Metrics implements transport.Observer and records clock estimates.
type Metrics struct {
	frames      *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	ioErrors    *prometheus.CounterVec
	beacons     prometheus.Counter
	estimates   prometheus.Counter
	clockDelay  prometheus.Gauge
	clockOffset prometheus.Gauge
}

var _ transport.Observer = (*Metrics)(nil)

// New creates the link and clock collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_frames_total",
			Help:      "Frames received from the trigger board, by tag.",
		}, []string{"tag"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_frames_dropped_total",
			Help:      "Frames discarded by the link, by reason.",
		}, []string{"reason"}),
		ioErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_io_errors_total",
			Help:      "Channel read and write errors, by category.",
		}, []string{"category"}),
		beacons: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clock_beacons_total",
			Help:      "Clock beacons sent to the board.",
		}),
		estimates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clock_estimates_total",
			Help:      "Completed clock exchanges.",
		}),
		clockDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_delay_microseconds",
			Help:      "Round-trip delay of the last clock exchange.",
		}),
		clockOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_offset_microseconds",
			Help:      "Board clock offset from the host of the last clock exchange.",
		}),
	}
	reg.MustRegister(m.frames, m.dropped, m.ioErrors, m.beacons, m.estimates, m.clockDelay, m.clockOffset)
	return m
}

func (m *Metrics) FrameReceived(tag string)   { m.frames.WithLabelValues(tag).Inc() }
func (m *Metrics) FrameDropped(reason string) { m.dropped.WithLabelValues(reason).Inc() }
func (m *Metrics) IOError(category string)    { m.ioErrors.WithLabelValues(category).Inc() }
func (m *Metrics) BeaconSent()                { m.beacons.Inc() }

// ObserveClock records an estimate. Pass it to clocksync.WithObserver.
func (m *Metrics) ObserveClock(est clocksync.Estimate) {
	m.estimates.Inc()
	m.clockDelay.Set(float64(est.DelayUS))
	m.clockOffset.Set(float64(est.OffsetUS))
}

// RegisterBus exports bus counters read from b.Stats at scrape time.
func RegisterBus(reg prometheus.Registerer, b eventbus.Bus) {
	counter := func(name, help string, get func(eventbus.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get(b.Stats())) })
	}
	reg.MustRegister(
		counter("published_total", "Messages accepted by the bus.", func(s eventbus.Stats) uint64 { return s.Published }),
		counter("dropped_total", "Messages rejected because the publish queue was full.", func(s eventbus.Stats) uint64 { return s.Dropped }),
		counter("forwarded_total", "Messages handed to the forwarder.", func(s eventbus.Stats) uint64 { return s.Forwarded }),
		counter("forward_errors_total", "Forwarder failures.", func(s eventbus.Stats) uint64 { return s.ForwardErrors }),
		counter("forward_dropped_total", "Messages not forwarded because the forwarder queue was full.", func(s eventbus.Stats) uint64 { return s.ForwardDropped }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "subscriptions",
			Help:      "Active subscriptions.",
		}, func() float64 { return float64(len(b.Stats().Subscriptions)) }),
	)
}

// RegisterTriggers exports the last trigger time of every device. Devices
// that never fired report -1.
func RegisterTriggers(reg prometheus.Registerer, r *trigger.Registry) {
	for _, d := range trigger.Devices() {
		d := d
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "trigger_last_time_microseconds",
			Help:        "Board time of the device's last trigger edge.",
			ConstLabels: prometheus.Labels{"device": d.String()},
		}, func() float64 {
			ok, ts := r.GetLastStatus(d)
			if !ok {
				return -1
			}
			return float64(ts)
		}))
	}
}
