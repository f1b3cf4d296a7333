// Package downloader orchestrates download units: one active unit per
// logical key, cancel-and-replace on resubmission, and a bounded number of
// simultaneous transfers. Callers drive retries; the manager never does.
package downloader

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"github.com/downpour-dl/downpour/internal/destination"
	"github.com/downpour-dl/downpour/internal/engine"
	"github.com/downpour-dl/downpour/internal/engine/events"
	"github.com/downpour-dl/downpour/internal/engine/types"
	"github.com/downpour-dl/downpour/internal/history"
	"github.com/downpour-dl/downpour/internal/logging"
	"github.com/downpour-dl/downpour/internal/metrics"
	"github.com/downpour-dl/downpour/internal/notify"
	"github.com/downpour-dl/downpour/internal/progress"
)

const lockFilename = "downpour.lock"

// Submission describes one download for the manager to orchestrate.
type Submission struct {
	Request    types.DownloadRequest
	Policy     types.CreationPolicy
	Foreground bool
	Listener   Listener
}

// Options configures a Manager. Root is required; everything else has a
// working zero value. An empty DataDir disables the instance lock.
type Options struct {
	Root          string
	DataDir       string
	MaxConcurrent int
	Runtime       *types.RuntimeConfig
	Client        *http.Client
	Notifier      notify.Notifier
	History       *history.Store
	Metrics       *metrics.Collector
	Logger        *zap.Logger
}

// Manager owns the unit table and runs transfers against it.
type Manager struct {
	transfer *engine.Transfer
	resolver *destination.Resolver
	notifier notify.Notifier
	store    *history.Store
	metrics  *metrics.Collector
	log      *zap.Logger

	lock *flock.Flock
	sem  chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	units  map[string]*unit
	closed bool
}

// NewManager builds a Manager and, when DataDir is set, takes the
// cross-process instance lock. ErrAlreadyRunning means another process
// holds it.
func NewManager(opts Options) (*Manager, error) {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = types.DefaultMaxConcurrentDownloads
	}

	m := &Manager{
		transfer: engine.NewTransfer(opts.Client, opts.Runtime, opts.Logger),
		resolver: destination.NewResolver(opts.Root, opts.Logger),
		notifier: opts.Notifier,
		store:    opts.History,
		metrics:  opts.Metrics,
		log:      logging.Or(opts.Logger),
		sem:      make(chan struct{}, maxConcurrent),
		units:    make(map[string]*unit),
	}

	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, &destination.StorageError{Op: "mkdir", Path: opts.DataDir, Err: err}
		}
		fl := flock.New(filepath.Join(opts.DataDir, lockFilename))
		ok, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire instance lock: %w", err)
		}
		if !ok {
			return nil, ErrAlreadyRunning
		}
		m.lock = fl
	}

	return m, nil
}

// Submit accepts a download and returns its attempt ID. If a unit is
// already active under the same logical key it is cancelled and replaced;
// a terminal unit under the key is discarded silently. OnEnqueued fires
// before Submit returns.
func (m *Manager) Submit(sub Submission) (string, error) {
	if err := sub.Request.Validate(); err != nil {
		return "", err
	}
	if sub.Foreground && m.notifier == nil {
		return "", ErrForegroundUnavailable
	}

	listener := sub.Listener
	if listener == nil {
		listener = NopListener{}
	}

	u := &unit{
		id:         uuid.New().String(),
		key:        sub.Request.LogicalKey(),
		req:        sub.Request,
		policy:     sub.Policy,
		foreground: sub.Foreground,
		listener:   listener,
		done:       make(chan struct{}),
		state:      StateEnqueued,
	}
	u.ctx, u.cancel = context.WithCancel(context.Background())

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	prev := m.units[u.key]
	m.units[u.key] = u
	// Count the run before releasing the lock so Close cannot slip its
	// Wait in between.
	m.wg.Add(1)
	m.mu.Unlock()

	if prev != nil && !prev.State().Terminal() {
		prev.cancel()
	}

	u.listener.OnEnqueued()
	m.metrics.RecordSubmission()
	m.log.Info("download enqueued",
		zap.String("id", u.id),
		zap.String("key", u.key),
		zap.String("url", u.req.URL),
		zap.String("policy", u.policy.String()))

	go m.run(u, prev)

	return u.id, nil
}

// Cancel stops the unit under key if it is still active. It reports false
// for unknown keys and for units already terminal.
func (m *Manager) Cancel(key string) bool {
	u := m.lookup(key)
	if u == nil || u.State().Terminal() {
		return false
	}
	u.cancel()
	return true
}

// Block stops the unit under key on behalf of an external scheduling
// layer; the unit settles as Blocked instead of Cancelled.
func (m *Manager) Block(key string) bool {
	u := m.lookup(key)
	if u == nil || u.State().Terminal() {
		return false
	}
	u.markBlocked()
	u.cancel()
	return true
}

// Acknowledge clears a terminal unit so the key reads as absent again.
func (m *Manager) Acknowledge(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[key]
	if !ok || !u.State().Terminal() {
		return false
	}
	delete(m.units, key)
	return true
}

// State reports the current lifecycle state of the unit under key.
func (m *Manager) State(key string) (State, bool) {
	u := m.lookup(key)
	if u == nil {
		return "", false
	}
	return u.State(), true
}

// Close cancels every active unit, waits for their runs to settle, and
// releases the instance lock. The manager accepts no submissions after.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	active := make([]*unit, 0, len(m.units))
	for _, u := range m.units {
		active = append(active, u)
	}
	m.mu.Unlock()

	for _, u := range active {
		u.cancel()
	}
	m.wg.Wait()

	if m.lock != nil {
		return m.lock.Unlock()
	}
	return nil
}

func (m *Manager) lookup(key string) *unit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.units[key]
}

// run executes one unit: wait for the predecessor to release the
// destination, take a concurrency slot, resolve, transfer, settle.
func (m *Manager) run(u *unit, prev *unit) {
	defer m.wg.Done()
	defer close(u.done)
	defer u.cancel()

	started := time.Now()

	if prev != nil {
		select {
		case <-prev.done:
		case <-u.ctx.Done():
			m.settle(u, u.ctx.Err(), started)
			return
		}
	}

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-u.ctx.Done():
		m.settle(u, u.ctx.Err(), started)
		return
	}

	if u.foreground {
		if err := m.notifier.Init(); err != nil {
			m.settle(u, fmt.Errorf("%w: %v", ErrForegroundUnavailable, err), started)
			return
		}
	}

	dest, err := m.resolver.Resolve(u.req, u.policy)
	if err != nil {
		m.settle(u, err, started)
		return
	}
	u.setPath(dest.Path)

	err = m.transfer.Run(u.ctx, u.req, dest, m.sinkFor(u))
	m.settle(u, err, started)
}

// sinkFor adapts engine events to unit bookkeeping and listener calls.
// Terminal listener callbacks are driven from settle, not from here, so a
// unit fires exactly one.
func (m *Manager) sinkFor(u *unit) events.Sink {
	return func(e events.Event) {
		switch ev := e.(type) {
		case events.Started:
			u.markRunning(ev)
			m.metrics.TransferStarted()
			u.listener.OnRunning(ev.Offset, 0, 0)
			if u.foreground {
				m.notifier.Progress(progress.Percentage(ev.Offset, ev.Total), u.key)
			}
		case events.Progress:
			u.setReceived(ev.Received)
			u.listener.OnRunning(ev.Received, ev.Rate, ev.Remaining)
			if u.foreground {
				m.notifier.Progress(progress.Percentage(ev.Received, u.Total()), u.key)
			}
		case events.Completed:
			u.setReceived(ev.Received)
		case events.Cancelled:
			u.setReceived(ev.Received)
		}
	}
}

// settle moves a unit to its terminal state, records the outcome, and
// fires the terminal listener callback. err carries the run result:
// nil for success, the context error for cancellation.
func (m *Manager) settle(u *unit, err error, started time.Time) {
	if u.wasStreaming() {
		m.metrics.TransferEnded()
	}

	var state State
	category := "none"
	message := ""

	switch {
	case err == nil:
		state = StateSucceeded
	case u.ctx.Err() != nil && u.isBlocked():
		state = StateBlocked
	case u.ctx.Err() != nil:
		state = StateCancelled
	default:
		state = StateFailed
		category = Categorize(err)
		message = err.Error()
	}

	u.setState(state)

	contentType := ""
	if state == StateSucceeded {
		if kind, kerr := filetype.MatchFile(u.Path()); kerr == nil && kind != filetype.Unknown {
			contentType = kind.MIME.Value
		}
	}

	elapsed := time.Since(started)

	m.metrics.RecordOutcome(string(state), category)
	m.metrics.RecordBytes(u.Received() - u.Offset())
	if state == StateSucceeded {
		m.metrics.RecordDuration(elapsed.Seconds())
		m.metrics.RecordFileSize(u.Received())
	}

	if m.store != nil {
		entry := history.Entry{
			ID:          u.id,
			Key:         u.key,
			URL:         u.req.URL,
			Path:        u.Path(),
			State:       string(state),
			Category:    category,
			Message:     message,
			Received:    u.Received(),
			Total:       u.Total(),
			ContentType: contentType,
			StartedAt:   started.UTC(),
			FinishedAt:  time.Now().UTC(),
		}
		if rerr := m.store.Record(context.Background(), entry); rerr != nil {
			m.log.Warn("history record failed", zap.String("id", u.id), zap.Error(rerr))
		}
	}

	m.log.Info("download settled",
		zap.String("id", u.id),
		zap.String("key", u.key),
		zap.String("state", string(state)),
		zap.Int64("received", u.Received()),
		zap.Duration("elapsed", elapsed.Round(time.Millisecond)))

	if u.foreground {
		m.notifier.Done(u.key, state == StateSucceeded)
	}

	switch state {
	case StateSucceeded:
		u.listener.OnSucceeded(u.Path())
	case StateFailed:
		u.listener.OnFailed(message)
	case StateCancelled:
		u.listener.OnCancelled()
	case StateBlocked:
		u.listener.OnBlocked()
	}
}
