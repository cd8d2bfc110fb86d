// Package governor enforces per-query wall-clock deadlines and tracks a
// rolling window of query latencies to raise a backpressure signal when the
// fill loop is running suspiciously long, repeatedly (§5 "a query-cancel
// flag polled at loop head is the recommended protocol"; the load tracker
// is this repo's analogue of the teacher's toxic-flow detector, re-purposed
// from "adverse fills" to "slow queries").
package governor

import (
	"context"
	"sync"
	"time"
)

// Deadline wraps ctx with timeout, returning the derived context and its
// cancel func. Every Estimator query should be run under the returned
// context so a runaway fill loop is cut off at the governor's boundary
// rather than the caller's.
func Deadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// sample is one completed query's outcome, kept only long enough to fall
// out of the rolling window.
type sample struct {
	at       time.Time
	duration time.Duration
	slow     bool
}

// LoadTracker tracks recent query durations in a rolling time window and
// reports a backpressure flag once the fraction of slow queries in that
// window exceeds a configured ratio — a load-shedding signal a caller can
// use to start rejecting or queuing new queries rather than letting them
// pile up behind an already-saturated estimator.
type LoadTracker struct {
	mu sync.Mutex

	window            time.Duration
	slowThreshold     time.Duration
	backpressureRatio float64

	samples []sample
}

// NewLoadTracker creates a LoadTracker. slowThreshold is the per-query
// duration above which a sample counts as "slow"; backpressureRatio is the
// fraction of slow samples in window that trips Backpressure().
func NewLoadTracker(window, slowThreshold time.Duration, backpressureRatio float64) *LoadTracker {
	return &LoadTracker{
		window:            window,
		slowThreshold:     slowThreshold,
		backpressureRatio: backpressureRatio,
	}
}

// Record adds a completed query's duration to the rolling window.
func (lt *LoadTracker) Record(duration time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.samples = append(lt.samples, sample{
		at:       time.Now(),
		duration: duration,
		slow:     duration >= lt.slowThreshold,
	})
	lt.evictStaleLocked()
}

// evictStaleLocked removes samples older than the window. Must be called
// with the lock held.
func (lt *LoadTracker) evictStaleLocked() {
	if len(lt.samples) == 0 {
		return
	}
	cutoff := time.Now().Add(-lt.window)
	validIdx := -1
	for i, s := range lt.samples {
		if s.at.After(cutoff) {
			validIdx = i
			break
		}
	}
	if validIdx == -1 {
		lt.samples = lt.samples[:0]
		return
	}
	if validIdx > 0 {
		lt.samples = lt.samples[validIdx:]
	}
}

// Backpressure reports whether the fraction of slow queries in the current
// window has crossed backpressureRatio.
func (lt *LoadTracker) Backpressure() bool {
	lt.mu.Lock()
	lt.evictStaleLocked()
	samples := len(lt.samples)
	if samples == 0 {
		lt.mu.Unlock()
		return false
	}
	var slow int
	for _, s := range lt.samples {
		if s.slow {
			slow++
		}
	}
	lt.mu.Unlock()

	return float64(slow)/float64(samples) > lt.backpressureRatio
}

// SampleCount returns the number of samples currently in the window, for
// diagnostics/tests.
func (lt *LoadTracker) SampleCount() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.evictStaleLocked()
	return len(lt.samples)
}
