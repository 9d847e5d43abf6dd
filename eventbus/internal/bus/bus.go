package bus

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type subscription struct {
	id    string
	topic string
	fn    Handler
	inbox chan Message

	delivered atomic.Uint64
	dropped   atomic.Uint64
	filtered  atomic.Uint64
}

type bus struct {
	cfg   Config
	queue chan Message

	mu     sync.RWMutex
	subs   map[string]*subscription
	closed bool

	publisherDone chan struct{}
	workers       sync.WaitGroup

	fwdQueue chan Message
	fwdDone  chan struct{}

	seq            atomic.Uint64
	published      atomic.Uint64
	dropped        atomic.Uint64
	forwarded      atomic.Uint64
	forwardErrors  atomic.Uint64
	forwardDropped atomic.Uint64
}

// New creates a bus and starts its publisher goroutine.
func New(cfg Config) Bus {
	b := newBus(cfg)
	b.run()
	return b
}

func newBus(cfg Config) *bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
	if cfg.ForwardQueueSize <= 0 {
		cfg.ForwardQueueSize = DefaultForwardQueueSize
	}
	b := &bus{
		cfg:           cfg,
		queue:         make(chan Message, cfg.QueueSize),
		subs:          make(map[string]*subscription),
		publisherDone: make(chan struct{}),
	}
	if cfg.Forwarder != nil {
		b.fwdQueue = make(chan Message, cfg.ForwardQueueSize)
		b.fwdDone = make(chan struct{})
	}
	return b
}

func (b *bus) run() {
	if b.fwdQueue != nil {
		go b.forwardLoop()
	}
	go b.publishLoop()
}

// Publish copies payload and queues it for fan-out. It never blocks: when
// the queue is full the message is dropped and ErrQueueFull returned.
func (b *bus) Publish(topic string, payload []byte) error {
	msg := Message{
		Topic:       topic,
		Payload:     append([]byte(nil), payload...),
		PublishedAt: time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	msg.Seq = b.seq.Add(1)
	select {
	case b.queue <- msg:
		b.published.Add(1)
		return nil
	default:
		b.dropped.Add(1)
		slog.Debug("eventbus: queue full, message dropped", "topic", topic, "seq", msg.Seq)
		return ErrQueueFull
	}
}

// publishLoop is the only reader of the queue, so fan-out and the hand-off
// to the forwarder happen one message at a time in publish order.
func (b *bus) publishLoop() {
	defer close(b.publisherDone)
	for msg := range b.queue {
		b.fanout(msg)
		b.forward(msg)
	}
}

// fanout offers msg to every subscription whose topic is a prefix of the
// message topic. Workers apply the exact-match check.
func (b *bus) fanout(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if !strings.HasPrefix(msg.Topic, s.topic) {
			continue
		}
		select {
		case s.inbox <- msg:
		default:
			s.dropped.Add(1)
		}
	}
}

// forward hands msg to the forwarder goroutine, dropping it when that queue
// is full so a slow broker never holds up local delivery.
func (b *bus) forward(msg Message) {
	if b.fwdQueue == nil {
		return
	}
	select {
	case b.fwdQueue <- msg:
	default:
		b.forwardDropped.Add(1)
	}
}

func (b *bus) forwardLoop() {
	defer close(b.fwdDone)
	for msg := range b.fwdQueue {
		b.forwardOne(msg)
	}
}

func (b *bus) forwardOne(msg Message) {
	if err := b.cfg.Forwarder.Forward(msg); err != nil {
		b.forwardErrors.Add(1)
		slog.Debug("eventbus: forward failed", "topic", msg.Topic, "error", err)
		return
	}
	b.forwarded.Add(1)
}

// Subscribe starts a worker goroutine that invokes fn for every message
// published on exactly topic. Payloads are shared between subscriptions and
// must be treated as read-only.
func (b *bus) Subscribe(topic string, fn Handler) (*Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if fn == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	s := &subscription{
		id:    uuid.NewString(),
		topic: topic,
		fn:    fn,
		inbox: make(chan Message, b.cfg.InboxSize),
	}
	b.subs[s.id] = s

	b.workers.Add(1)
	go b.work(s)

	return &Subscription{ID: s.id, Topic: topic}, nil
}

func (b *bus) work(s *subscription) {
	defer b.workers.Done()
	for msg := range s.inbox {
		if msg.Topic != s.topic {
			s.filtered.Add(1)
			continue
		}
		b.deliver(s, msg)
	}
}

func (b *bus) deliver(s *subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("eventbus: handler panicked", "subscription", s.id, "topic", s.topic, "panic", r)
		}
	}()
	s.fn(msg.Topic, msg.Payload)
	s.delivered.Add(1)
}

// Unsubscribe stops delivery to a subscription. Messages already in its
// inbox are still handled before the worker exits.
func (b *bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	delete(b.subs, id)
	close(s.inbox)
	return nil
}

// Stats returns a snapshot of bus and per-subscription counters.
func (b *bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Published:      b.published.Load(),
		Dropped:        b.dropped.Load(),
		Forwarded:      b.forwarded.Load(),
		ForwardErrors:  b.forwardErrors.Load(),
		ForwardDropped: b.forwardDropped.Load(),
		Subscriptions:  make(map[string]SubscriptionStats, len(b.subs)),
	}
	for id, s := range b.subs {
		st.Subscriptions[id] = SubscriptionStats{
			Topic:     s.topic,
			Delivered: s.delivered.Load(),
			Dropped:   s.dropped.Load(),
			Filtered:  s.filtered.Load(),
		}
	}
	return st
}

// Close stops accepting publishes, delivers what is already queued, joins
// every worker and closes the forwarder. It must not be called from a
// Handler.
func (b *bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.publisherDone

	b.mu.Lock()
	for id, s := range b.subs {
		close(s.inbox)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	b.workers.Wait()

	if b.fwdQueue != nil {
		close(b.fwdQueue)
		<-b.fwdDone
	}
	if b.cfg.Forwarder != nil {
		if err := b.cfg.Forwarder.Close(); err != nil {
			slog.Warn("eventbus: forwarder close failed", "error", err)
		}
	}
}
