// Package notify is the capability boundary for user-facing download
// notices. Foreground downloads report through it; background downloads
// never touch it. Implementations have no control-flow effect on transfers.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/downpour-dl/downpour/internal/logging"
)

// Notifier surfaces foreground download activity to the user.
type Notifier interface {
	// Init prepares the notification channel. It runs lazily before the
	// first foreground download and must tolerate repeated calls.
	Init() error

	// Progress reports a whole-number percentage for the named download.
	Progress(percent int, filename string)

	// Done reports the terminal outcome for the named download.
	Done(filename string, success bool)
}

// LogNotifier writes notices to a structured logger. It stands in where
// the host offers no richer notification surface.
type LogNotifier struct {
	log  *zap.Logger
	once sync.Once
}

// NewLogNotifier builds a LogNotifier; a nil logger is replaced with a nop.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{log: logging.Or(logger)}
}

// Init marks the channel ready. Always succeeds; subsequent calls are no-ops.
func (n *LogNotifier) Init() error {
	n.once.Do(func() {
		n.log.Debug("notification channel ready")
	})
	return nil
}

// Progress logs one progress tick.
func (n *LogNotifier) Progress(percent int, filename string) {
	n.log.Info("downloading",
		zap.Int("percent", percent),
		zap.String("file", filename))
}

// Done logs the terminal outcome.
func (n *LogNotifier) Done(filename string, success bool) {
	n.log.Info("download finished",
		zap.String("file", filename),
		zap.Bool("success", success))
}
