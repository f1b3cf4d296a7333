// Package events defines the messages a transfer run emits while it
// executes. Every run produces exactly one terminal event (Completed,
// Failed, or Cancelled) and emits nothing after it.
package events

import "time"

// Event is implemented by every transfer event type.
type Event interface {
	event()
}

// Sink receives events synchronously on the transfer goroutine, so
// handlers observe them in emission order.
type Sink func(Event)

// Started signals that the transfer is about to stream. Offset carries
// the resume position, 0 for a fresh download. Total is the effective
// size corroborated from the response, 0 when the server did not say.
type Started struct {
	Path   string
	Offset int64
	Total  int64
}

// Progress reports cumulative received bytes with the smoothed rate and
// remaining-time estimate. Emitted at most once per sample interval, in
// non-decreasing Received order.
type Progress struct {
	Received  int64
	Rate      float64
	Remaining time.Duration
}

// Completed is the success terminal event.
type Completed struct {
	Path     string
	Received int64
	Elapsed  time.Duration
}

// Failed is the failure terminal event. Path carries the best-known
// destination, possibly empty when resolution itself failed, so
// consumers can judge whether an Append retry is possible.
type Failed struct {
	Path string
	Err  error
}

// Cancelled is the terminal event for a cooperative cancellation. The
// partial file at Path is left intact for a later Append resume.
type Cancelled struct {
	Path     string
	Received int64
}

func (Started) event()   {}
func (Progress) event()  {}
func (Completed) event() {}
func (Failed) event()    {}
func (Cancelled) event() {}
