package clocksync

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyn4676086/multi-camera-sync/wire"
)

type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *fakeSender) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, append([]byte(nil), frame...))
	return nil
}

func (s *fakeSender) sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func fixedClock(us uint64) Clock {
	return func() uint64 { return us }
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name string
		s    Sample
		want Estimate
	}{
		{"symmetric", Sample{100, 110, 200, 214}, Estimate{DelayUS: 12, OffsetUS: -2}},
		{"zero", Sample{5, 5, 5, 5}, Estimate{}},
		{"board ahead", Sample{1000, 1600, 2000, 1500}, Estimate{DelayUS: 50, OffsetUS: 550}},
		{"truncates toward zero", Sample{0, 3, 0, 0}, Estimate{DelayUS: 1, OffsetUS: 1}},
		{"negative truncates toward zero", Sample{3, 0, 0, 0}, Estimate{DelayUS: -1, OffsetUS: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.s))
		})
	}
}

func TestExchange(t *testing.T) {
	s := &fakeSender{}
	e := NewEngine(s, WithClock(fixedClock(214)))

	e.HandleRequest(100, 110)
	est, ok, err := e.HandleResponse(200)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Estimate{DelayUS: 12, OffsetUS: -2}, est)

	require.Len(t, s.sent(), 1)
	assert.Equal(t, "{\"f\":\"b\",\"a\":12,\"b\":-2}\n", string(s.sent()[0]))

	last, at := e.Estimate()
	assert.Equal(t, est, last)
	assert.False(t, at.IsZero())
}

func TestDuplicatePhaseBIgnored(t *testing.T) {
	s := &fakeSender{}
	e := NewEngine(s, WithClock(fixedClock(214)))

	e.HandleRequest(100, 110)
	_, ok, err := e.HandleResponse(200)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = e.HandleResponse(201)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, s.sent(), 1, "stale phase B must not send a reply")

	st := e.Stats()
	assert.Equal(t, uint64(2), st.Responses)
	assert.Equal(t, uint64(1), st.StaleResponses)
	assert.Equal(t, uint64(1), st.Estimates)
}

func TestResponseWithoutRequest(t *testing.T) {
	e := NewEngine(&fakeSender{})
	_, ok, err := e.HandleResponse(1)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, at := e.Estimate()
	assert.True(t, at.IsZero())
}

func TestNewerRequestReplacesPending(t *testing.T) {
	e := NewEngine(&fakeSender{}, WithClock(fixedClock(214)))
	e.HandleRequest(1, 2)
	e.HandleRequest(100, 110)

	est, ok, err := e.HandleResponse(200)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12), est.DelayUS)
}

func TestBeacon(t *testing.T) {
	s := &fakeSender{}
	e := NewEngine(s, WithClock(fixedClock(1234)))
	require.NoError(t, e.Beacon())

	require.Len(t, s.sent(), 1)
	assert.Equal(t, string(wire.EncodeBeacon(1234)), string(s.sent()[0]))
	assert.Equal(t, uint64(1), e.Stats().BeaconsSent)
}

func TestSendErrors(t *testing.T) {
	boom := errors.New("boom")
	s := &fakeSender{err: boom}
	var observed []Estimate
	e := NewEngine(s, WithClock(fixedClock(214)), WithObserver(func(est Estimate) {
		observed = append(observed, est)
	}))

	assert.ErrorIs(t, e.Beacon(), boom)

	e.HandleRequest(100, 110)
	est, ok, err := e.HandleResponse(200)
	assert.ErrorIs(t, err, boom)
	assert.True(t, ok, "estimate is still computed when the reply fails")
	assert.Equal(t, []Estimate{est}, observed)
	assert.Equal(t, uint64(2), e.Stats().SendErrors)
}

func TestMonotonicMicrosAdvances(t *testing.T) {
	a := MonotonicMicros()
	b := MonotonicMicros()
	assert.GreaterOrEqual(t, b, a)
}
