package bus

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type collector struct {
	mu   sync.Mutex
	msgs []Message
	got  chan struct{}
}

func newCollector() *collector {
	return &collector{got: make(chan struct{}, 1024)}
}

func (c *collector) handle(topic string, payload []byte) {
	c.mu.Lock()
	c.msgs = append(c.msgs, Message{Topic: topic, Payload: payload})
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []Message {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for message %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

// TestPublishSubscribe verifies a payload arrives byte-for-byte.
func TestPublishSubscribe(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	c := newCollector()
	if _, err := b.Subscribe("cam_1", c.handle); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	payload := []byte{0x00, 0x01, 0xff, 0x7f}
	if err := b.Publish("cam_1", payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs := c.wait(t, 1)
	if msgs[0].Topic != "cam_1" {
		t.Errorf("Expected topic cam_1, got %q", msgs[0].Topic)
	}
	if !bytes.Equal(msgs[0].Payload, payload) {
		t.Errorf("Payload mismatch: got %v, want %v", msgs[0].Payload, payload)
	}
}

// TestPublishCopiesPayload verifies later writes by the producer are not seen.
func TestPublishCopiesPayload(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	c := newCollector()
	b.Subscribe("imu_1", c.handle)

	payload := []byte("original")
	b.Publish("imu_1", payload)
	copy(payload, "XXXXXXXX")

	msgs := c.wait(t, 1)
	if string(msgs[0].Payload) != "original" {
		t.Errorf("Expected original payload, got %q", msgs[0].Payload)
	}
}

// TestExactTopicMatch verifies prefix-sharing topics are filtered out.
func TestExactTopicMatch(t *testing.T) {
	b := New(Config{})

	c := newCollector()
	sub, _ := b.Subscribe("cam_1", c.handle)

	b.Publish("cam_10", []byte("wrong"))
	b.Publish("cam_1_trigger", []byte("wrong"))
	b.Publish("cam_2", []byte("wrong"))
	b.Publish("cam_1", []byte("right"))

	msgs := c.wait(t, 1)
	stats := b.Stats().Subscriptions[sub.ID]
	b.Close()

	if len(msgs) != 1 || string(msgs[0].Payload) != "right" {
		t.Fatalf("Expected only the cam_1 message, got %v", msgs)
	}
	if stats.Filtered != 2 {
		t.Errorf("Expected 2 filtered (cam_10, cam_1_trigger), got %d", stats.Filtered)
	}
}

// TestPerProducerOrder verifies one producer's messages arrive in send order.
func TestPerProducerOrder(t *testing.T) {
	b := New(Config{QueueSize: 2000, InboxSize: 2000})
	defer b.Close()

	const n = 1000
	c := newCollector()
	c.got = make(chan struct{}, n)
	b.Subscribe("gps", c.handle)

	for i := 0; i < n; i++ {
		if err := b.Publish("gps", []byte(fmt.Sprintf("%d", i))); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	msgs := c.wait(t, n)
	for i, m := range msgs {
		if string(m.Payload) != fmt.Sprintf("%d", i) {
			t.Fatalf("Out of order at %d: got %s", i, m.Payload)
		}
	}
}

// TestConcurrentProducers verifies nothing is lost under contention when
// queues are large enough.
func TestConcurrentProducers(t *testing.T) {
	b := New(Config{QueueSize: 4096, InboxSize: 4096})
	defer b.Close()

	const producers, each = 8, 200
	c := newCollector()
	c.got = make(chan struct{}, producers*each)
	b.Subscribe("imu_1", c.handle)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				b.Publish("imu_1", []byte{byte(i)})
			}
		}()
	}
	wg.Wait()

	c.wait(t, producers*each)
	if got := b.Stats().Published; got != producers*each {
		t.Errorf("Expected %d published, got %d", producers*each, got)
	}
}

// TestSlowSubscriberDrops verifies a blocked handler causes drops, not
// blocking of Publish or of other subscribers.
func TestSlowSubscriberDrops(t *testing.T) {
	b := New(Config{InboxSize: 1})

	release := make(chan struct{})
	slow, _ := b.Subscribe("laser", func(string, []byte) { <-release })
	fast := newCollector()
	b.Subscribe("laser", fast.handle)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish("laser", []byte{byte(i)})
			// keep the fast subscriber's single slot free
			<-fast.got
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on slow subscriber")
	}

	stats := b.Stats().Subscriptions[slow.ID]
	if stats.Dropped == 0 {
		t.Errorf("Expected slow subscriber to drop messages")
	}
	close(release)
	b.Close()
}

// TestQueueFull verifies Publish reports a full queue instead of blocking.
func TestQueueFull(t *testing.T) {
	// publisher not running yet, so nothing drains the queue
	b := newBus(Config{QueueSize: 1})

	if err := b.Publish("cam_3", []byte{1}); err != nil {
		t.Fatalf("First publish failed: %v", err)
	}
	if err := b.Publish("cam_3", []byte{2}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if b.Stats().Dropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", b.Stats().Dropped)
	}

	c := newCollector()
	b.Subscribe("cam_3", c.handle)
	b.run()
	c.wait(t, 1)
	b.Close()
}

type slowForwarder struct {
	delay time.Duration

	mu    sync.Mutex
	count int
}

func (f *slowForwarder) Forward(Message) error {
	time.Sleep(f.delay)
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	return nil
}

func (f *slowForwarder) Close() error { return nil }

// TestSlowForwarderDoesNotStallDelivery verifies a slow broker only costs
// forwarded messages, never local ones.
func TestSlowForwarderDoesNotStallDelivery(t *testing.T) {
	fw := &slowForwarder{delay: 20 * time.Millisecond}
	b := New(Config{QueueSize: 16, ForwardQueueSize: 4, Forwarder: fw})

	const n = 200
	c := newCollector()
	b.Subscribe("imu_1", c.handle)

	for i := 0; i < n; i++ {
		if err := b.Publish("imu_1", []byte{byte(i)}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
		time.Sleep(time.Millisecond)
	}
	c.wait(t, n)

	st := b.Stats()
	if st.Dropped != 0 {
		t.Errorf("Expected no publish drops, got %d", st.Dropped)
	}
	if st.ForwardDropped == 0 {
		t.Error("Expected the forwarder queue to drop")
	}
	b.Close()

	st = b.Stats()
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if uint64(fw.count) != st.Forwarded || st.Forwarded+st.ForwardDropped != n {
		t.Errorf("Forwarded %d (forwarder saw %d) + dropped %d != %d", st.Forwarded, fw.count, st.ForwardDropped, n)
	}
}

// TestUnsubscribe verifies no delivery after unsubscribing.
func TestUnsubscribe(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	c := newCollector()
	sub, _ := b.Subscribe("cam_4", c.handle)
	if err := b.Unsubscribe(sub.ID); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := b.Unsubscribe(sub.ID); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("Expected ErrSubscriptionNotFound, got %v", err)
	}

	b.Publish("cam_4", []byte("late"))
	select {
	case <-c.got:
		t.Error("Received message after Unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestCloseIdempotent verifies Close twice returns and joins workers.
func TestCloseIdempotent(t *testing.T) {
	b := New(Config{})

	var running sync.WaitGroup
	running.Add(1)
	var exited bool
	b.Subscribe("gps", func(string, []byte) {
		running.Done()
		time.Sleep(20 * time.Millisecond)
		exited = true
	})
	b.Publish("gps", nil)
	running.Wait()

	done := make(chan struct{})
	go func() {
		b.Close()
		b.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked")
	}
	if !exited {
		t.Error("Close returned before the worker finished")
	}
	if err := b.Publish("gps", nil); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}
	if _, err := b.Subscribe("gps", func(string, []byte) {}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}
}

// TestHandlerPanicIsContained verifies a panicking handler does not kill its worker.
func TestHandlerPanicIsContained(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	got := make(chan string, 2)
	b.Subscribe("cam_2", func(_ string, p []byte) {
		if string(p) == "bad" {
			panic("boom")
		}
		got <- string(p)
	})

	b.Publish("cam_2", []byte("bad"))
	b.Publish("cam_2", []byte("good"))

	select {
	case p := <-got:
		if p != "good" {
			t.Errorf("Expected good, got %s", p)
		}
	case <-time.After(time.Second):
		t.Fatal("Worker did not survive the panic")
	}
}

type fakeForwarder struct {
	mu     sync.Mutex
	msgs   []Message
	err    error
	closed bool
}

func (f *fakeForwarder) Forward(m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeForwarder) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// TestForwarder verifies every message is forwarded in order and the
// forwarder is closed with the bus.
func TestForwarder(t *testing.T) {
	fw := &fakeForwarder{}
	b := New(Config{Forwarder: fw})

	b.Publish("a", []byte("1"))
	b.Publish("b", []byte("2"))
	b.Close()

	if len(fw.msgs) != 2 || fw.msgs[0].Topic != "a" || fw.msgs[1].Topic != "b" {
		t.Fatalf("Unexpected forwarded messages: %+v", fw.msgs)
	}
	if fw.msgs[0].Seq >= fw.msgs[1].Seq {
		t.Errorf("Sequence numbers not increasing: %d, %d", fw.msgs[0].Seq, fw.msgs[1].Seq)
	}
	if !fw.closed {
		t.Error("Forwarder not closed")
	}
}

// TestForwarderErrorsCounted verifies failures are absorbed.
func TestForwarderErrorsCounted(t *testing.T) {
	fw := &fakeForwarder{err: errors.New("broker unreachable")}
	b := New(Config{Forwarder: fw})

	c := newCollector()
	b.Subscribe("imu_1", c.handle)
	b.Publish("imu_1", []byte("x"))
	c.wait(t, 1)
	b.Close()

	st := b.Stats()
	if st.ForwardErrors != 1 || st.Forwarded != 0 {
		t.Errorf("Expected 1 forward error, got %+v", st)
	}
}

// TestSubscribeValidation checks argument errors.
func TestSubscribeValidation(t *testing.T) {
	b := New(Config{})
	defer b.Close()

	if _, err := b.Subscribe("", func(string, []byte) {}); !errors.Is(err, ErrEmptyTopic) {
		t.Errorf("Expected ErrEmptyTopic, got %v", err)
	}
	if _, err := b.Subscribe("x", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Expected ErrNilHandler, got %v", err)
	}
}
