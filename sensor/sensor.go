// Package sensor defines the contract hardware drivers implement to take
// part in a synchronized capture, plus a helper for the common parts.
package sensor

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyn4676086/multi-camera-sync/trigger"
)

// DefaultRestartPause is the delay between Stop and Initialize in Restart.
const DefaultRestartPause = 500 * time.Millisecond

// ErrInitFailed is returned by Restart when Initialize reports failure.
var ErrInitFailed = errors.New("sensor: initialization failed")

// Adapter is implemented by every capture driver.
//
// Start spawns one capture loop per device and returns. Each loop stamps its
// records with the trigger time of the device it is bound to and publishes
// them on the bus. Stop ends all loops and waits for them.
type Adapter interface {
	Initialize() bool
	Start()
	Stop()
	SetParams(params map[string]trigger.Device)
}

// Restart runs Stop, waits pause, then Initialize and, only if that
// succeeded, Start. A non-positive pause uses DefaultRestartPause.
func Restart(a Adapter, pause time.Duration) error {
	if pause <= 0 {
		pause = DefaultRestartPause
	}
	a.Stop()
	time.Sleep(pause)
	if !a.Initialize() {
		return ErrInitFailed
	}
	a.Start()
	return nil
}

// Publisher is the part of the event bus adapters publish to.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Base implements the bookkeeping shared by adapters: the name to device
// mapping, trigger lookups, publishing, and capture goroutine lifecycle.
// Embed it and call StartLoops / StopLoops from Start and Stop.
type Base struct {
	registry *trigger.Registry
	pub      Publisher

	mu     sync.RWMutex
	params map[string]trigger.Device

	loopMu  sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewBase returns a Base bound to the shared registry and bus.
func NewBase(registry *trigger.Registry, pub Publisher) *Base {
	return &Base{registry: registry, pub: pub, params: map[string]trigger.Device{}}
}

// SetParams replaces the name to device mapping.
func (b *Base) SetParams(params map[string]trigger.Device) {
	cp := make(map[string]trigger.Device, len(params))
	for k, v := range params {
		cp[k] = v
	}
	b.mu.Lock()
	b.params = cp
	b.mu.Unlock()
}

// Params returns a copy of the mapping.
func (b *Base) Params() map[string]trigger.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cp := make(map[string]trigger.Device, len(b.params))
	for k, v := range b.params {
		cp[k] = v
	}
	return cp
}

// TriggerTime returns the last trigger time of the device bound to name.
// ok is false if name is unmapped or the device has not fired yet.
func (b *Base) TriggerTime(name string) (timeUS uint64, ok bool) {
	b.mu.RLock()
	dev, mapped := b.params[name]
	b.mu.RUnlock()
	if !mapped || b.registry == nil {
		return trigger.NeverTriggered, false
	}
	fired, ts := b.registry.GetLastStatus(dev)
	return ts, fired
}

// Publish marshals rec and publishes it on topic.
func (b *Base) Publish(topic string, rec encoding.BinaryMarshaler) error {
	if b.pub == nil {
		return nil
	}
	payload, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("sensor: encode %s: %w", topic, err)
	}
	return b.pub.Publish(topic, payload)
}

// StartLoops runs each loop on its own goroutine until StopLoops. It does
// nothing if loops are already running.
func (b *Base) StartLoops(loops ...func(ctx context.Context)) {
	b.loopMu.Lock()
	defer b.loopMu.Unlock()

	if b.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running.Store(true)

	for _, loop := range loops {
		b.wg.Add(1)
		go func(loop func(context.Context)) {
			defer b.wg.Done()
			loop(ctx)
		}(loop)
	}
}

// StopLoops cancels the capture loops and waits for them. Idempotent.
func (b *Base) StopLoops() {
	b.loopMu.Lock()
	defer b.loopMu.Unlock()

	if b.cancel == nil {
		return
	}
	b.running.Store(false)
	b.cancel()
	b.wg.Wait()
	b.cancel = nil
	slog.Debug("sensor: capture loops stopped")
}

// Running reports whether capture loops are active.
func (b *Base) Running() bool { return b.running.Load() }
