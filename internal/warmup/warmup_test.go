package warmup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeSteadyEdges(t *testing.T) {
	// 10 Hz for one second
	var ts []uint64
	for i := 0; i <= 10; i++ {
		ts = append(ts, uint64(1_000_000+i*100_000))
	}
	st := Compute(ts)

	assert.Equal(t, 11, st.Edges)
	assert.InDelta(t, 10.0, st.RateMean, 1e-9)
	assert.InDelta(t, 10.0, st.RateMin, 1e-9)
	assert.InDelta(t, 10.0, st.RateMax, 1e-9)
	assert.InDelta(t, 0, st.JitterMean, 1e-9)
	assert.True(t, st.IsStable)
}

func TestComputeIrregularEdges(t *testing.T) {
	ts := []uint64{0, 100_000, 110_000, 400_000, 420_000, 900_000}
	st := Compute(ts)

	assert.Equal(t, 6, st.Edges)
	assert.False(t, st.IsStable)
	assert.Greater(t, st.RateMax, st.RateMin)
	assert.Greater(t, st.JitterMax, 0.0)
}

func TestComputeFewEdges(t *testing.T) {
	assert.Equal(t, Stats{}, Compute(nil))
	assert.Equal(t, Stats{Edges: 1}, Compute([]uint64{5}))
	// duplicates collapse, so a repeated latch time is one edge
	assert.Equal(t, Stats{Edges: 1}, Compute([]uint64{5, 5, 5}))
}

func TestCollectStopsOnDuration(t *testing.T) {
	edges := make(chan uint64, 8)
	for i := 0; i < 5; i++ {
		edges <- uint64(i * 50_000)
	}

	start := time.Now()
	st := Collect(context.Background(), edges, 30*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 5, st.Edges)
	assert.InDelta(t, 20.0, st.RateMean, 1e-9)
}

func TestCollectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := Collect(ctx, make(chan uint64), time.Hour)
	assert.Zero(t, st.Edges)
}
