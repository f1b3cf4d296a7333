package downloader

import (
	"errors"

	"github.com/downpour-dl/downpour/internal/destination"
	"github.com/downpour-dl/downpour/internal/engine"
)

var (
	// ErrAlreadyRunning means another process holds the instance lock on
	// the data directory.
	ErrAlreadyRunning = errors.New("another downpour instance holds the data directory lock")

	// ErrForegroundUnavailable means a foreground submission arrived but
	// no notification channel is wired. Raised before any network or
	// filesystem activity.
	ErrForegroundUnavailable = errors.New("foreground downloads unavailable: no notifier configured")

	// ErrManagerClosed means the manager no longer accepts submissions.
	ErrManagerClosed = errors.New("download manager is closed")
)

// Categorize buckets an attempt error for history rows and metrics labels.
func Categorize(err error) string {
	var serr *destination.StorageError
	var perr *engine.ProtocolError
	var terr *engine.TransportError

	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrForegroundUnavailable):
		return "permission"
	case errors.As(err, &serr):
		return "storage"
	case errors.As(err, &perr):
		return "protocol"
	case errors.As(err, &terr):
		return "transport"
	default:
		return "unknown"
	}
}
