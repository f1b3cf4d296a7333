package downloader

// State is a download unit's position in its lifecycle.
type State string

const (
	// StateEnqueued means the unit is accepted and waiting to transfer.
	StateEnqueued State = "enqueued"

	// StateRunning means bytes are streaming to the destination.
	StateRunning State = "running"

	// StateSucceeded means the file completed and was flushed to disk.
	StateSucceeded State = "succeeded"

	// StateFailed means the attempt ended with an error. Partial bytes,
	// if any, stay at the destination path.
	StateFailed State = "failed"

	// StateCancelled means the caller stopped the attempt.
	StateCancelled State = "cancelled"

	// StateBlocked means an external scheduling layer suppressed the
	// attempt. The engine never produces it on its own.
	StateBlocked State = "blocked"
)

// Terminal reports whether no further transitions can happen. A terminal
// unit stays observable until acknowledged or replaced.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled, StateBlocked:
		return true
	}
	return false
}
