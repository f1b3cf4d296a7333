package downloader

import "time"

// Listener receives lifecycle callbacks for one submission. OnEnqueued is
// invoked from the submitting goroutine; every other callback runs on the
// unit's own goroutine, so callbacks for a unit never overlap. Exactly one
// terminal callback fires per unit, and nothing fires after it.
// Implementations should return quickly; a slow listener stalls its
// transfer's progress reporting.
type Listener interface {
	OnEnqueued()
	OnRunning(received int64, rate float64, remaining time.Duration)
	OnSucceeded(path string)
	OnFailed(message string)
	OnCancelled()
	OnBlocked()
}

// NopListener ignores every callback. Embed it to implement only the
// callbacks a consumer cares about.
type NopListener struct{}

func (NopListener) OnEnqueued()                             {}
func (NopListener) OnRunning(int64, float64, time.Duration) {}
func (NopListener) OnSucceeded(string)                      {}
func (NopListener) OnFailed(string)                         {}
func (NopListener) OnCancelled()                            {}
func (NopListener) OnBlocked()                              {}
