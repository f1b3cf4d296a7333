package downloader

import (
	"context"
	"sync"

	"github.com/downpour-dl/downpour/internal/engine/events"
	"github.com/downpour-dl/downpour/internal/engine/types"
)

// unit is one submission's lifetime: a request, its listener, and the
// cancellable run working on it. done closes when the run has settled and
// released the destination, which is what a replacement waits for.
type unit struct {
	id         string
	key        string
	req        types.DownloadRequest
	policy     types.CreationPolicy
	foreground bool
	listener   Listener

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	blocked   bool
	streaming bool
	path      string
	offset    int64
	total     int64
	received  int64
}

func (u *unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *unit) setState(s State) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()
}

// markRunning records the corroborated start of streaming.
func (u *unit) markRunning(ev events.Started) {
	u.mu.Lock()
	u.state = StateRunning
	u.streaming = true
	u.path = ev.Path
	u.offset = ev.Offset
	u.received = ev.Offset
	u.total = ev.Total
	u.mu.Unlock()
}

func (u *unit) wasStreaming() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.streaming
}

func (u *unit) markBlocked() {
	u.mu.Lock()
	u.blocked = true
	u.mu.Unlock()
}

func (u *unit) isBlocked() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.blocked
}

func (u *unit) setPath(p string) {
	u.mu.Lock()
	u.path = p
	u.mu.Unlock()
}

func (u *unit) Path() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.path
}

func (u *unit) setReceived(n int64) {
	u.mu.Lock()
	u.received = n
	u.mu.Unlock()
}

func (u *unit) Received() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.received
}

func (u *unit) Offset() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.offset
}

func (u *unit) Total() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total
}
