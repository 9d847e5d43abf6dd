/*
Package eventbus is the process-wide publish/subscribe hub for sensor records.

# Overview

Producers (the transport link, the trigger registry, sensor adapters) call
Publish with a topic and an opaque payload. Every Subscription whose topic
equals the published topic receives the payload on its own worker goroutine.

	b := eventbus.New(eventbus.Config{})
	defer b.Close()

	b.Subscribe("imu_1", func(topic string, payload []byte) {
	    var s records.IMU
	    _ = s.UnmarshalBinary(payload)
	})
	b.Publish("imu_1", data)

# Delivery

Delivery is at most once. Publish copies the payload into a single bounded
queue drained by one publisher goroutine, so all producers are serialized in
one place. The publisher offers each message to every subscription whose
topic is a prefix of the message topic; the subscription worker then drops
anything that is not an exact match. A subscription on "cam_1" therefore
never sees "cam_10" or "cam_1_trigger".

Nothing blocks on a slow consumer. A full central queue makes Publish return
ErrQueueFull; a full subscription inbox drops the message for that
subscription only. Both are counted in Stats.

Messages from one producer goroutine to one topic reach a given subscription
in send order. There is no ordering across producers or topics.

# Cross-process delivery

A Forwarder set in Config sees every message after local fan-out.
MQTTBridge forwards to an MQTT broker, wrapping each message in a msgpack
Envelope; external consumers unpack it with DecodeEnvelope. Failures are
logged, counted and dropped.

# Lifecycle

Close stops accepting publishes, drains the queue, joins every worker and
closes the forwarder. Close is idempotent. Calling Close from inside a
Handler deadlocks.
*/
package eventbus
