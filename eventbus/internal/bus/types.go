package bus

import (
	"errors"
	"time"
)

// Internal errors - mapped to public errors in eventbus package
var (
	ErrBusClosed            = errors.New("eventbus: bus is closed")
	ErrQueueFull            = errors.New("eventbus: publish queue full")
	ErrNilHandler           = errors.New("eventbus: nil handler")
	ErrEmptyTopic           = errors.New("eventbus: empty topic")
	ErrSubscriptionNotFound = errors.New("eventbus: subscription not found")
)

// Defaults for Config fields left at zero.
const (
	DefaultQueueSize        = 1024
	DefaultInboxSize        = 256
	DefaultForwardQueueSize = 256
)

// Message is one published payload as it travels through the bus.
type Message struct {
	Topic       string
	Payload     []byte
	Seq         uint64
	PublishedAt time.Time
}

// Handler is invoked on a subscription's worker goroutine.
type Handler func(topic string, payload []byte)

// Forwarder receives every published message after local fan-out, for
// delivery outside the process. It runs on its own goroutine behind a
// bounded queue, like a subscription.
type Forwarder interface {
	Forward(msg Message) error
	Close() error
}

// Config sizes the bus queues.
type Config struct {
	// QueueSize bounds the central publish queue.
	QueueSize int
	// InboxSize bounds each subscription's inbox.
	InboxSize int
	// Forwarder is optional.
	Forwarder Forwarder
	// ForwardQueueSize bounds the forwarder's queue.
	ForwardQueueSize int
}

// Subscription identifies one registered handler.
type Subscription struct {
	ID    string
	Topic string
}

// SubscriptionStats tracks delivery for one subscription.
type SubscriptionStats struct {
	Topic     string
	Delivered uint64
	Dropped   uint64
	Filtered  uint64
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published     uint64
	Dropped       uint64
	Forwarded      uint64
	ForwardErrors  uint64
	ForwardDropped uint64
	Subscriptions  map[string]SubscriptionStats
}

// Bus is a topic-addressed publish/subscribe hub.
type Bus interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, fn Handler) (*Subscription, error)
	Unsubscribe(id string) error
	Stats() Stats
	Close()
}
