package eventbus

import "github.com/cyn4676086/multi-camera-sync/eventbus/internal/bus"

// Public API - Re-export internal types as stable contract

// Bus is a topic-addressed publish/subscribe hub with exact-match delivery
type Bus = bus.Bus

// Config sizes the central queue and per-subscription inboxes
type Config = bus.Config

// Message is a published payload with its topic and sequence number
type Message = bus.Message

// Handler receives messages on a subscription's worker goroutine
type Handler = bus.Handler

// Forwarder carries messages out of the process (see MQTTBridge)
type Forwarder = bus.Forwarder

// Subscription identifies a registered handler
type Subscription = bus.Subscription

// Stats and SubscriptionStats expose delivery counters
type (
	Stats             = bus.Stats
	SubscriptionStats = bus.SubscriptionStats
)

const (
	DefaultQueueSize        = bus.DefaultQueueSize
	DefaultInboxSize        = bus.DefaultInboxSize
	DefaultForwardQueueSize = bus.DefaultForwardQueueSize
)

// Public API errors - Re-export internal errors as stable contract
var (
	ErrBusClosed            = bus.ErrBusClosed
	ErrQueueFull            = bus.ErrQueueFull
	ErrNilHandler           = bus.ErrNilHandler
	ErrEmptyTopic           = bus.ErrEmptyTopic
	ErrSubscriptionNotFound = bus.ErrSubscriptionNotFound
)

// New creates a bus and starts its publisher goroutine.
func New(cfg Config) Bus {
	return bus.New(cfg)
}
