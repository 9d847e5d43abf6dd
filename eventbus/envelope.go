package eventbus

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Envelope wraps a bus message for delivery outside the process. Payload is
// the raw record bytes; its layout is still implied by Topic.
type Envelope struct {
	ID          string `msgpack:"id"`
	Topic       string `msgpack:"topic"`
	PublishedUS int64  `msgpack:"published_us"`
	Seq         uint64 `msgpack:"seq"`
	Payload     []byte `msgpack:"payload"`
}

// EncodeEnvelope packs msg with a fresh envelope ID.
func EncodeEnvelope(msg Message) ([]byte, error) {
	env := Envelope{
		ID:          uuid.NewString(),
		Topic:       msg.Topic,
		PublishedUS: msg.PublishedAt.UnixMicro(),
		Seq:         msg.Seq,
		Payload:     msg.Payload,
	}
	b, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("eventbus: encode envelope: %w", err)
	}
	return b, nil
}

// DecodeEnvelope is the inverse of EncodeEnvelope, for external subscribers.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("eventbus: decode envelope: %w", err)
	}
	return env, nil
}
