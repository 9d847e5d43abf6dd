// Package warmup measures how steadily the trigger board fires while the
// link settles, before sensors are started.
package warmup

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"
)

const (
	// rateStabilityThreshold is the maximum rate standard deviation as a
	// fraction of the mean rate.
	rateStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of the
	// expected edge interval.
	jitterStabilityThreshold = 0.20
)

// Stats summarizes trigger edges seen during warm-up. Rates are in Hz and
// jitter in seconds, both measured on the board's clock.
type Stats struct {
	Edges        int
	Duration     time.Duration
	RateMean     float64
	RateStdDev   float64
	RateMin      float64
	RateMax      float64
	JitterMean   float64
	JitterStdDev float64
	JitterMax    float64
	IsStable     bool
}

// Collect records edge timestamps (board microseconds) from edges until ctx
// is done or duration elapses, then returns their statistics. A closed edges
// channel ends collection early.
func Collect(ctx context.Context, edges <-chan uint64, duration time.Duration) Stats {
	start := time.Now()
	timer := time.NewTimer(duration)
	defer timer.Stop()

	var times []uint64
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-timer.C:
			break loop
		case ts, ok := <-edges:
			if !ok {
				break loop
			}
			times = append(times, ts)
		}
	}

	st := Compute(times)
	st.Duration = time.Since(start)
	slog.Debug("warmup: collected trigger edges",
		"edges", st.Edges,
		"rate_hz", st.RateMean,
		"jitter_s", st.JitterMean,
		"stable", st.IsStable,
	)
	return st
}

// Compute derives rate and jitter statistics from edge timestamps in
// microseconds. Timestamps need not be sorted; duplicates are ignored.
func Compute(timesUS []uint64) Stats {
	ts := dedupSorted(timesUS)
	st := Stats{Edges: len(ts)}
	if len(ts) < 2 {
		return st
	}

	intervals := make([]float64, 0, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		intervals = append(intervals, float64(ts[i]-ts[i-1])/1e6)
	}

	span := float64(ts[len(ts)-1]-ts[0]) / 1e6
	st.RateMean = float64(len(intervals)) / span

	rates := make([]float64, len(intervals))
	for i, iv := range intervals {
		rates[i] = 1 / iv
	}
	st.RateMin, st.RateMax = rates[0], rates[0]
	for _, r := range rates {
		st.RateMin = math.Min(st.RateMin, r)
		st.RateMax = math.Max(st.RateMax, r)
	}
	st.RateStdDev = stddev(rates, st.RateMean)

	expected := 1 / st.RateMean
	jitters := make([]float64, len(intervals))
	var sum float64
	for i, iv := range intervals {
		jitters[i] = math.Abs(iv - expected)
		sum += jitters[i]
		st.JitterMax = math.Max(st.JitterMax, jitters[i])
	}
	st.JitterMean = sum / float64(len(jitters))
	st.JitterStdDev = stddev(jitters, st.JitterMean)

	st.IsStable = st.RateStdDev < st.RateMean*rateStabilityThreshold &&
		st.JitterMean < expected*jitterStabilityThreshold
	return st
}

func stddev(xs []float64, mean float64) float64 {
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func dedupSorted(in []uint64) []uint64 {
	out := append([]uint64(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, v := range out {
		if i > 0 && v == out[n-1] {
			continue
		}
		out[n] = v
		n++
	}
	return out[:n]
}
