package clocksync

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyn4676086/multi-camera-sync/wire"
)

// Sender writes one encoded frame to the board.
type Sender interface {
	Send(frame []byte) error
}

// Sample holds the four timestamps of one exchange, in microseconds.
// T1 and T2 come from a phase A frame, T3 from the following phase B frame,
// T4 is the local receive time of that phase B frame.
type Sample struct {
	T1, T2, T3, T4 uint64
}

// Estimate is the result of one exchange.
type Estimate struct {
	DelayUS  int64
	OffsetUS int64
}

// Compute applies the symmetric round-trip formula. Differences are taken in
// signed 64-bit arithmetic and halved with truncation toward zero.
func Compute(s Sample) Estimate {
	up := int64(s.T2 - s.T1)
	down := int64(s.T4 - s.T3)
	return Estimate{
		DelayUS:  (down + up) / 2,
		OffsetUS: (up - down) / 2,
	}
}

// Stats is a snapshot of engine counters.
type Stats struct {
	BeaconsSent    uint64
	SendErrors     uint64
	Requests       uint64
	Responses      uint64
	StaleResponses uint64
	Estimates      uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for beacons and t4.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.now = c }
}

// WithObserver registers a function called with every new estimate.
func WithObserver(fn func(Estimate)) Option {
	return func(e *Engine) { e.observe = fn }
}

// Engine runs the host side of the board's clock exchange. It is safe for
// concurrent use by a transmit and a receive goroutine.
type Engine struct {
	sender  Sender
	now     Clock
	observe func(Estimate)

	mu     sync.Mutex
	sample Sample
	fresh  bool
	last   Estimate
	lastAt time.Time

	beacons    atomic.Uint64
	sendErrors atomic.Uint64
	requests   atomic.Uint64
	responses  atomic.Uint64
	stale      atomic.Uint64
	estimates  atomic.Uint64
}

// NewEngine returns an engine writing through sender.
func NewEngine(sender Sender, opts ...Option) *Engine {
	e := &Engine{sender: sender, now: WallMicros}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Beacon sends a phase A frame carrying the local send time.
func (e *Engine) Beacon() error {
	if err := e.sender.Send(wire.EncodeBeacon(e.now())); err != nil {
		e.sendErrors.Add(1)
		return fmt.Errorf("clocksync: beacon: %w", err)
	}
	e.beacons.Add(1)
	return nil
}

// HandleRequest stores (t1, t2) from a phase A frame and marks the pair fresh.
// A newer pair replaces one that was never consumed.
func (e *Engine) HandleRequest(t1, t2 uint64) {
	e.requests.Add(1)
	e.mu.Lock()
	e.sample.T1, e.sample.T2 = t1, t2
	e.fresh = true
	e.mu.Unlock()
}

// HandleResponse completes an exchange with the board time t3 of a phase B
// frame. If a fresh pair is pending it computes the estimate, replies to the
// board and consumes the pair; otherwise it returns ok == false and sends
// nothing.
func (e *Engine) HandleResponse(t3 uint64) (est Estimate, ok bool, err error) {
	t4 := e.now()
	e.responses.Add(1)

	e.mu.Lock()
	if !e.fresh {
		e.mu.Unlock()
		e.stale.Add(1)
		return Estimate{}, false, nil
	}
	e.sample.T3, e.sample.T4 = t3, t4
	est = Compute(e.sample)
	e.fresh = false
	e.last = est
	e.lastAt = time.Now()
	e.mu.Unlock()

	e.estimates.Add(1)
	if e.observe != nil {
		e.observe(est)
	}
	slog.Debug("clocksync: estimate", "delay_us", est.DelayUS, "offset_us", est.OffsetUS)

	if err := e.sender.Send(wire.EncodeReply(est.DelayUS, est.OffsetUS)); err != nil {
		e.sendErrors.Add(1)
		return est, true, fmt.Errorf("clocksync: reply: %w", err)
	}
	return est, true, nil
}

// Estimate returns the most recent estimate and when it was computed. The
// time is zero if no exchange has completed.
func (e *Engine) Estimate() (Estimate, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.lastAt
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		BeaconsSent:    e.beacons.Load(),
		SendErrors:     e.sendErrors.Load(),
		Requests:       e.requests.Load(),
		Responses:      e.responses.Load(),
		StaleResponses: e.stale.Load(),
		Estimates:      e.estimates.Load(),
	}
}
