package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyn4676086/multi-camera-sync/clocksync"
	"github.com/cyn4676086/multi-camera-sync/trigger"
	"github.com/cyn4676086/multi-camera-sync/wire"
)

// ErrNotRunning is returned by Send while the link has no open channel.
var ErrNotRunning = errors.New("transport: link not running")

// Publisher is the part of the event bus the link publishes records to.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Observer receives link events, typically for metrics.
type Observer interface {
	FrameReceived(tag string)
	FrameDropped(reason string)
	IOError(category string)
	BeaconSent()
}

type nopObserver struct{}

func (nopObserver) FrameReceived(string) {}
func (nopObserver) FrameDropped(string)  {}
func (nopObserver) IOError(string)       {}
func (nopObserver) BeaconSent()          {}

// Option configures a Link.
type Option func(*Link)

// WithDialer replaces Open, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(l *Link) { l.dial = d }
}

// WithObserver installs an event observer.
func WithObserver(o Observer) Option {
	return func(l *Link) { l.obs = o }
}

// WithClockOptions passes options to the link's clock sync engine.
func WithClockOptions(opts ...clocksync.Option) Option {
	return func(l *Link) { l.clockOpts = append(l.clockOpts, opts...) }
}

// Stats is a snapshot of link counters.
type Stats struct {
	Channel     string
	Running     bool
	BytesRead   uint64
	Frames      map[string]uint64
	Ignored     uint64
	ParseErrors uint64
	IOErrors    uint64
	Overflows   uint64
	Clock       clocksync.Stats
}

// Link owns one channel to the trigger board and runs its receive and
// transmit goroutines.
type Link struct {
	cfg       Config
	dial      Dialer
	obs       Observer
	clockOpts []clocksync.Option

	engine   *clocksync.Engine
	registry *trigger.Registry
	pub      Publisher

	mu            sync.Mutex
	cancel        context.CancelFunc
	done          chan struct{} // closed once the current run has torn down
	closeErr      error         // set before done is closed
	handshakeDone bool
	describe      string

	// ioMu guards ch and serializes writes from both loops.
	ioMu sync.Mutex
	ch   Channel

	frames      map[wire.Tag]*atomic.Uint64
	bytesRead   atomic.Uint64
	ignored     atomic.Uint64
	parseErrors atomic.Uint64
	ioErrors    atomic.Uint64
	overflows   atomic.Uint64
}

// NewLink validates cfg and prepares a stopped link. Trigger frames go to
// registry; IMU and GPS records go to pub.
func NewLink(cfg Config, registry *trigger.Registry, pub Publisher, opts ...Option) (*Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	l := &Link{
		cfg:      cfg,
		dial:     Open,
		obs:      nopObserver{},
		registry: registry,
		pub:      pub,
		frames:   make(map[wire.Tag]*atomic.Uint64),
	}
	for _, tag := range []wire.Tag{wire.TagTrigger, wire.TagClockA, wire.TagClockB, wire.TagIMU, wire.TagGPS, wire.TagLog} {
		l.frames[tag] = new(atomic.Uint64)
	}
	for _, opt := range opts {
		opt(l)
	}
	l.engine = clocksync.NewEngine(l, l.clockOpts...)
	return l, nil
}

// Config returns the link configuration with defaults applied.
func (l *Link) Config() Config { return l.cfg }

// Engine returns the link's clock sync engine.
func (l *Link) Engine() *clocksync.Engine { return l.engine }

// Start opens the channel and spawns the receive and transmit loops. On the
// first Start of a channel that supports it, the handshake is sent before
// any frame. Calling Start on a running link does nothing.
//
// When ctx ends the loops exit and the channel is closed as if Stop had been
// called, so the link can be started again.
func (l *Link) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		select {
		case <-l.done:
			// previous run ended with its context
			l.cancel = nil
		default:
			return nil
		}
	}

	ch, err := l.dial(l.cfg)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", l.cfg, err)
	}

	if !l.handshakeDone {
		if hs, ok := ch.(Handshaker); ok {
			if err := hs.Handshake(); err != nil {
				l.ioErrors.Add(1)
				l.obs.IOError(ClassifyIOError(err).String())
				slog.Warn("transport: handshake failed", "channel", ch.Describe(), "error", err)
			}
		}
		l.handshakeDone = true
	}

	l.ioMu.Lock()
	l.ch = ch
	l.ioMu.Unlock()
	l.describe = ch.Describe()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.closeErr = nil

	p, ok := ch.(Packeted)
	packeted := ok && p.Packeted()

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		l.receiveLoop(runCtx, ch, packeted)
	}()
	go func() {
		defer loops.Done()
		l.transmitLoop(runCtx)
	}()
	go func() {
		<-runCtx.Done()
		loops.Wait()
		l.closeErr = l.teardown()
		close(done)
	}()

	slog.Info("transport: link started",
		"channel", l.describe,
		"read_timeout", l.cfg.ReadTimeout,
		"beacon_interval", l.cfg.BeaconInterval,
	)
	return nil
}

// Stop cancels both loops, waits for them to exit and closes the channel.
// Calling Stop on a stopped link does nothing.
func (l *Link) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel == nil {
		return nil
	}

	l.cancel()
	<-l.done
	l.cancel = nil
	return l.closeErr
}

// teardown closes the channel once both loops have exited. It runs without
// mu so Stop can wait for it.
func (l *Link) teardown() error {
	l.ioMu.Lock()
	ch := l.ch
	l.ch = nil
	l.ioMu.Unlock()

	var err error
	if ch != nil {
		if cerr := ch.Close(); cerr != nil {
			err = fmt.Errorf("transport: close %s: %w", l.describe, cerr)
		}
	}

	st := l.Stats()
	slog.Info("transport: link stopped",
		"channel", l.describe,
		"bytes_read", st.BytesRead,
		"parse_errors", st.ParseErrors,
		"io_errors", st.IOErrors,
		"beacons", st.Clock.BeaconsSent,
	)
	return err
}

// Running reports whether the loops are active.
func (l *Link) Running() bool {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()
	return l.ch != nil
}

// Send writes one frame to the board. It implements clocksync.Sender.
func (l *Link) Send(frame []byte) error {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()
	if l.ch == nil {
		return ErrNotRunning
	}
	return l.ch.Write(frame)
}

func (l *Link) receiveLoop(ctx context.Context, ch Channel, packeted bool) {
	buf := make([]byte, 64*1024)
	var split LineSplitter

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := ch.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			cat := ClassifyIOError(err)
			l.ioErrors.Add(1)
			l.obs.IOError(cat.String())
			slog.Warn("transport: read failed", "channel", l.describe, "category", cat.String(), "error", err)
			// back off for a full read period so a dead device does not spin
			sleepCtx(ctx, l.cfg.ReadTimeout)
			continue
		}
		if n == 0 {
			sleepCtx(ctx, l.cfg.IdleSleep)
			continue
		}

		l.bytesRead.Add(uint64(n))
		before := split.Overflows()
		split.Feed(buf[:n], l.handleLine)
		if packeted {
			split.Flush(l.handleLine)
		}
		if d := split.Overflows() - before; d > 0 {
			l.overflows.Add(d)
			l.obs.FrameDropped("overflow")
			slog.Warn("transport: discarded oversized partial line", "channel", l.describe)
		}
	}
}

func (l *Link) transmitLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.BeaconInterval)
	defer ticker.Stop()

	for {
		if err := l.engine.Beacon(); err != nil {
			if ctx.Err() != nil {
				return
			}
			cat := ClassifyIOError(err)
			l.ioErrors.Add(1)
			l.obs.IOError(cat.String())
			slog.Warn("transport: beacon failed", "channel", l.describe, "category", cat.String(), "error", err)
		} else {
			l.obs.BeaconSent()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stats returns a snapshot of link counters.
func (l *Link) Stats() Stats {
	frames := make(map[string]uint64, len(l.frames))
	for tag, c := range l.frames {
		frames[string(tag)] = c.Load()
	}
	return Stats{
		Channel:     l.cfg.String(),
		Running:     l.Running(),
		BytesRead:   l.bytesRead.Load(),
		Frames:      frames,
		Ignored:     l.ignored.Load(),
		ParseErrors: l.parseErrors.Load(),
		IOErrors:    l.ioErrors.Load(),
		Overflows:   l.overflows.Load(),
		Clock:       l.engine.Stats(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
