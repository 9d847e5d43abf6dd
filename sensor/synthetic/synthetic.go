// Package synthetic is a sensor adapter with no hardware behind it. Each
// configured name gets a capture loop that emits a record whenever its
// trigger device has fired since the last poll, stamped with the trigger
// time. Camera devices carry a generated test image.
package synthetic

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cyn4676086/multi-camera-sync/records"
	"github.com/cyn4676086/multi-camera-sync/sensor"
	"github.com/cyn4676086/multi-camera-sync/trigger"
)

// Config controls the generated stream.
type Config struct {
	// PollHz is how often each loop checks its trigger. Default 100.
	PollHz float64
	// Rows and Cols size the test image. Zero disables images.
	Rows, Cols int
	// FailInits makes the first n Initialize calls fail.
	FailInits int
}

// Adapter implements sensor.Adapter.
type Adapter struct {
	*sensor.Base
	cfg Config

	initCalls   atomic.Int32
	initialized atomic.Bool
	image       *records.Image

	published atomic.Uint64
	skipped   atomic.Uint64
}

var _ sensor.Adapter = (*Adapter)(nil)

// New returns an adapter publishing through pub and reading trigger times
// from registry.
func New(cfg Config, registry *trigger.Registry, pub sensor.Publisher) *Adapter {
	if cfg.PollHz <= 0 {
		cfg.PollHz = 100
	}
	return &Adapter{Base: sensor.NewBase(registry, pub), cfg: cfg}
}

// Initialize prepares the test image.
func (a *Adapter) Initialize() bool {
	n := a.initCalls.Add(1)
	if int(n) <= a.cfg.FailInits {
		slog.Warn("synthetic: initialization failed", "attempt", n)
		a.initialized.Store(false)
		return false
	}

	if a.image == nil && a.cfg.Rows > 0 && a.cfg.Cols > 0 {
		pix := make([]byte, a.cfg.Rows*a.cfg.Cols)
		for i := range pix {
			pix[i] = byte(i % 251)
		}
		img, err := records.NewImage(a.cfg.Rows, a.cfg.Cols, records.ImageType(records.Depth8U, 1), pix)
		if err != nil {
			slog.Error("synthetic: test image", "error", err)
			return false
		}
		a.image = img
	}
	a.initialized.Store(true)
	slog.Info("synthetic: initialized", "devices", len(a.Params()), "poll_hz", a.cfg.PollHz)
	return true
}

// Start launches one capture loop per configured name.
func (a *Adapter) Start() {
	if !a.initialized.Load() {
		slog.Warn("synthetic: start without successful initialization")
		return
	}
	session := uuid.NewString()
	params := a.Params()
	loops := make([]func(context.Context), 0, len(params))
	for name, dev := range params {
		loops = append(loops, a.captureLoop(session, name, dev))
	}
	a.StartLoops(loops...)
	slog.Info("synthetic: capture started", "session", session, "loops", len(loops))
}

// Stop ends all capture loops.
func (a *Adapter) Stop() {
	a.StopLoops()
}

// Published counts records sent to the bus.
func (a *Adapter) Published() uint64 { return a.published.Load() }

func (a *Adapter) captureLoop(session, name string, dev trigger.Device) func(context.Context) {
	interval := time.Duration(float64(time.Second) / a.cfg.PollHz)
	return func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := trigger.NeverTriggered
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			ts, ok := a.TriggerTime(name)
			if !ok || ts == last {
				a.skipped.Add(1)
				continue
			}
			last = ts

			if err := a.emit(name, dev, ts); err != nil {
				slog.Debug("synthetic: publish failed", "session", session, "name", name, "error", err)
				continue
			}
			a.published.Add(1)
		}
	}
}

func (a *Adapter) emit(name string, dev trigger.Device, ts uint64) error {
	if dev == trigger.Laser {
		return a.Publish(name, records.Laser{TimeUS: ts, Name: name})
	}
	cam := records.Camera{TimeUS: ts, Name: name}
	if a.image != nil {
		cam.Image = a.image.Retain()
		defer cam.Image.Release()
	}
	return a.Publish(name, cam)
}
