package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cyn4676086/multi-camera-sync/clocksync"
	"github.com/cyn4676086/multi-camera-sync/eventbus"
	"github.com/cyn4676086/multi-camera-sync/internal/warmup"
	"github.com/cyn4676086/multi-camera-sync/records"
	"github.com/cyn4676086/multi-camera-sync/sensor"
	"github.com/cyn4676086/multi-camera-sync/transport"
	"github.com/cyn4676086/multi-camera-sync/trigger"
)

// DefaultWarmup is how long the link runs before the sensor is initialized.
const DefaultWarmup = 2000 * time.Millisecond

var (
	// ErrNoLink is returned by Start when neither a net nor a serial link
	// has been configured.
	ErrNoLink = errors.New("coordinator: no link configured")

	// ErrSensorInit is returned by Start when the sensor failed to
	// initialize twice. The link keeps running.
	ErrSensorInit = errors.New("coordinator: sensor initialization failed")
)

// SensorState tracks the adapter's lifecycle as seen by the coordinator.
type SensorState string

const (
	SensorNone    SensorState = "none"
	SensorIdle    SensorState = "idle"
	SensorWarmup  SensorState = "warming_up"
	SensorRunning SensorState = "running"
	SensorFailed  SensorState = "failed"
	SensorStopped SensorState = "stopped"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWarmup sets the delay between link start and sensor start. Zero skips
// it.
func WithWarmup(d time.Duration) Option {
	return func(c *Coordinator) { c.warmup = d }
}

// WithRestartPause sets the pause used by the one restart attempt after a
// failed sensor initialization.
func WithRestartPause(d time.Duration) Option {
	return func(c *Coordinator) { c.restartPause = d }
}

// WithLinkOptions passes options to every link the coordinator creates.
func WithLinkOptions(opts ...transport.Option) Option {
	return func(c *Coordinator) { c.linkOpts = append(c.linkOpts, opts...) }
}

// Status is a snapshot for health reporting.
type Status struct {
	Running     bool
	Link        string
	LinkKind    transport.Kind
	LinkRunning bool
	Sensor      SensorState
	Clock       clocksync.Estimate
	ClockAt     time.Time
	Warmup      warmup.Stats
}

// Coordinator owns the active link and the sensor adapter and sequences
// their startup and shutdown.
type Coordinator struct {
	registry     *trigger.Registry
	bus          eventbus.Bus
	warmup       time.Duration
	restartPause time.Duration
	linkOpts     []transport.Option

	// adapterMu orders adapter bring-up against Stop; it is never held
	// together with mu.
	adapterMu sync.Mutex

	mu         sync.Mutex
	gen        uint64 // bumped by every Start and Stop
	ctx        context.Context
	running    bool
	link       *transport.Link
	adapter    sensor.Adapter
	state      SensorState
	warmStats  warmup.Stats
	warmCancel context.CancelFunc
}

// New returns a stopped coordinator. Trigger frames update registry; link
// and sensor records are published on bus.
func New(registry *trigger.Registry, bus eventbus.Bus, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		bus:      bus,
		warmup:   DefaultWarmup,
		state:    SensorNone,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetNetLink selects a UDP link to the board at ip:port.
func (c *Coordinator) SetNetLink(ip string, port int) error {
	return c.SetLink(transport.NetConfig(ip, port))
}

// SetSerialLink selects a serial link.
func (c *Coordinator) SetSerialLink(device string, baud int) error {
	return c.SetLink(transport.SerialConfig(device, baud))
}

// SetLink replaces the configured link. The previous link is stopped and
// discarded. If the coordinator is running the new link starts immediately.
func (c *Coordinator) SetLink(cfg transport.Config) error {
	link, err := transport.NewLink(cfg, c.registry, c.bus, c.linkOpts...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old := c.link; old != nil {
		if err := old.Stop(); err != nil {
			slog.Warn("coordinator: stopping replaced link", "link", old.Config().String(), "error", err)
		}
		slog.Info("coordinator: link replaced", "old", old.Config().String(), "new", cfg.String())
	}
	c.link = link

	if c.running {
		if err := link.Start(c.ctx); err != nil {
			return err
		}
	}
	return nil
}

// UseSensor registers the adapter started after warm-up. Its params must
// already be set.
func (c *Coordinator) UseSensor(a sensor.Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapter = a
	c.state = SensorIdle
}

// Link returns the active link, or nil.
func (c *Coordinator) Link() *transport.Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// Start brings up the link, waits out the warm-up while measuring trigger
// edges, then initializes and starts the sensor. If initialization fails one
// restart is attempted before ErrSensorInit is returned.
//
// Stop may be called while Start is in warm-up; Start then returns nil
// without touching the sensor. If ctx ends during warm-up its error is
// returned and the caller should Stop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	if c.link == nil {
		c.mu.Unlock()
		return ErrNoLink
	}
	if err := c.link.Start(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	c.running = true
	c.ctx = ctx
	c.gen++
	gen := c.gen

	adapter := c.adapter
	if adapter == nil {
		c.mu.Unlock()
		slog.Info("coordinator: started without sensor")
		return nil
	}

	wctx, cancel := context.WithCancel(ctx)
	c.warmCancel = cancel
	c.state = SensorWarmup
	c.mu.Unlock()

	stats := c.measureWarmup(wctx)
	cancel()

	c.mu.Lock()
	if c.gen != gen {
		// stopped, and possibly restarted, during warm-up
		c.mu.Unlock()
		return nil
	}
	c.warmCancel = nil
	c.warmStats = stats
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return c.startSensor(gen, adapter)
}

// current reports whether the Start that took generation gen is still the
// active one.
func (c *Coordinator) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.gen == gen
}

// startSensor brings the adapter up without holding mu, so Status stays
// responsive through a restart pause.
func (c *Coordinator) startSensor(gen uint64, a sensor.Adapter) error {
	c.adapterMu.Lock()
	defer c.adapterMu.Unlock()

	if !c.current(gen) {
		return nil
	}
	state, err := bringUp(a, c.restartPause)

	c.mu.Lock()
	if c.gen == gen {
		c.state = state
	}
	c.mu.Unlock()
	return err
}

func bringUp(a sensor.Adapter, pause time.Duration) (SensorState, error) {
	if a.Initialize() {
		a.Start()
		slog.Info("coordinator: sensor started")
		return SensorRunning, nil
	}

	slog.Warn("coordinator: sensor initialization failed, restarting", "pause", pause)
	if err := sensor.Restart(a, pause); err != nil {
		slog.Error("coordinator: sensor restart failed", "error", err)
		return SensorFailed, fmt.Errorf("%w: %w", ErrSensorInit, err)
	}
	slog.Info("coordinator: sensor started after restart")
	return SensorRunning, nil
}

func (c *Coordinator) measureWarmup(ctx context.Context) warmup.Stats {
	if c.warmup <= 0 {
		return warmup.Stats{}
	}

	edges := make(chan uint64, 256)
	var subs []*eventbus.Subscription
	if c.bus != nil {
		for _, d := range trigger.Devices() {
			sub, err := c.bus.Subscribe(d.Topic(), func(_ string, payload []byte) {
				var st records.DeviceStatus
				if st.UnmarshalBinary(payload) != nil || !st.Status {
					return
				}
				select {
				case edges <- st.TimeUS:
				default:
				}
			})
			if err != nil {
				slog.Debug("coordinator: warm-up subscribe", "topic", d.Topic(), "error", err)
				continue
			}
			subs = append(subs, sub)
		}
	}

	slog.Info("coordinator: warming up", "duration", c.warmup)
	stats := warmup.Collect(ctx, edges, c.warmup)

	for _, sub := range subs {
		_ = c.bus.Unsubscribe(sub.ID)
	}

	slog.Info("coordinator: warm-up complete",
		"edges", stats.Edges,
		"rate_hz", stats.RateMean,
		"jitter_s", stats.JitterMean,
		"stable", stats.IsStable,
	)
	return stats
}

// Stop stops the link, then the sensor. A sensor bring-up in progress is
// allowed to finish first and is then stopped. Calling Stop again does
// nothing.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.warmCancel != nil {
		c.warmCancel()
		c.warmCancel = nil
	}
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.gen++
	gen := c.gen

	var err error
	if c.link != nil {
		err = c.link.Stop()
	}
	adapter := c.adapter
	c.mu.Unlock()

	if adapter != nil {
		c.adapterMu.Lock()
		adapter.Stop()
		c.adapterMu.Unlock()

		c.mu.Lock()
		if c.gen == gen {
			c.state = SensorStopped
		}
		c.mu.Unlock()
	}
	slog.Info("coordinator: stopped")
	return err
}

// Status returns the current state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Running: c.running,
		Sensor:  c.state,
		Warmup:  c.warmStats,
	}
	if c.link != nil {
		cfg := c.link.Config()
		st.Link = cfg.String()
		st.LinkKind = cfg.Kind
		st.LinkRunning = c.link.Running()
		st.Clock, st.ClockAt = c.link.Engine().Estimate()
	}
	return st
}
