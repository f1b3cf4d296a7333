// Package progress smooths raw byte-counter readings into a bounded-rate
// stream of throughput and ETA samples.
package progress

import (
	"time"

	"github.com/downpour-dl/downpour/internal/engine/types"
)

// windowSize is the number of emission intervals the smoothing window
// keeps. Per-chunk instantaneous rates are too volatile for a stable ETA.
const windowSize = 5

// Sample is one emitted progress measurement. It is recomputed on every
// tick and never persisted.
type Sample struct {
	Received  int64         // cumulative bytes on disk
	Rate      float64       // smoothed bytes/sec
	Remaining time.Duration // 0 when rate or total is unknown
}

// Estimator coalesces high-frequency chunk reads into samples spaced at
// least types.SampleInterval apart. Byte and time deltas between
// emissions are kept in two fixed rings; the smoothed rate is the byte
// sum divided by the time sum over the window.
//
// An Estimator is private to one transfer run and is not safe for
// concurrent use.
type Estimator struct {
	total      int64
	downloaded int64

	byteDeltas [windowSize]int64
	timeDeltas [windowSize]time.Duration
	next       int
	filled     int

	pending  int64
	lastEmit time.Time // zero until the first observation
}

// NewEstimator creates an estimator for a transfer expected to deliver
// total bytes overall (0 when unknown, which disables the ETA).
// alreadyReceived seeds the cumulative counter when resuming.
func NewEstimator(total, alreadyReceived int64) *Estimator {
	return &Estimator{total: total, downloaded: alreadyReceived}
}

// Received returns the cumulative byte count observed so far.
func (e *Estimator) Received() int64 {
	return e.downloaded
}

// Observe records a byte delta read at the given instant. It returns a
// sample and true when at least types.SampleInterval has passed since the
// last emission. The first observation only establishes the timing
// baseline and never emits: with no prior timestamp there is no window to
// divide by.
func (e *Estimator) Observe(delta int64, now time.Time) (Sample, bool) {
	e.downloaded += delta

	if e.lastEmit.IsZero() {
		e.lastEmit = now
		return Sample{}, false
	}

	e.pending += delta
	elapsed := now.Sub(e.lastEmit)
	if elapsed < types.SampleInterval {
		return Sample{}, false
	}

	e.push(e.pending, elapsed)
	e.pending = 0
	e.lastEmit = now

	return Sample{
		Received:  e.downloaded,
		Rate:      e.rate(),
		Remaining: e.remaining(),
	}, true
}

func (e *Estimator) push(bytes int64, elapsed time.Duration) {
	e.byteDeltas[e.next] = bytes
	e.timeDeltas[e.next] = elapsed
	e.next = (e.next + 1) % windowSize
	if e.filled < windowSize {
		e.filled++
	}
}

func (e *Estimator) rate() float64 {
	var bytes int64
	var dur time.Duration
	for i := 0; i < e.filled; i++ {
		bytes += e.byteDeltas[i]
		dur += e.timeDeltas[i]
	}
	if dur <= 0 {
		return 0
	}
	return float64(bytes) / dur.Seconds()
}

func (e *Estimator) remaining() time.Duration {
	r := e.rate()
	if r <= 0 || e.total <= 0 {
		return 0
	}
	left := e.total - e.downloaded
	if left <= 0 {
		return 0
	}
	return time.Duration(float64(left) / r * float64(time.Second))
}

// Percentage computes integer-truncated progress, clamped to [0, 100].
// It returns 0 when the total is unknown.
func Percentage(received, total int64) int {
	if total <= 0 {
		return 0
	}
	p := received * 100 / total
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return int(p)
}
