// Package worker bridges the download manager to an external scheduling
// layer. Requests, outcomes, and progress frames cross the boundary as
// MessagePack so the scheduler never links against downloader types.
package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/downpour-dl/downpour/internal/downloader"
	"github.com/downpour-dl/downpour/internal/engine/types"
	"github.com/downpour-dl/downpour/internal/logging"
)

// Terminal statuses carried by Outcome.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusBlocked   = "blocked"
)

// Payload is the serialized download request a scheduler hands to Execute.
// Policy carries the CreationPolicy ordinal.
type Payload struct {
	URL         string `msgpack:"url"`
	Name        string `msgpack:"name"`
	Extension   string `msgpack:"extension"`
	Directory   string `msgpack:"directory"`
	Version     string `msgpack:"version,omitempty"`
	TotalBytes  int64  `msgpack:"total_bytes,omitempty"`
	AccessToken string `msgpack:"access_token,omitempty"`
	Policy      int    `msgpack:"policy"`
	Foreground  bool   `msgpack:"foreground,omitempty"`
}

// Outcome is the serialized terminal result returned by Execute. Path is
// set on success, Message on failure, Received on every status.
type Outcome struct {
	Status   string `msgpack:"status"`
	Path     string `msgpack:"path,omitempty"`
	Message  string `msgpack:"message,omitempty"`
	Received int64  `msgpack:"received"`
}

// Progress is one reporting frame. Rate is whole bytes per second and
// RemainingMS the remaining-time estimate in milliseconds, zero when the
// total size is unknown.
type Progress struct {
	Received    int64 `msgpack:"received"`
	Rate        int64 `msgpack:"rate"`
	RemainingMS int64 `msgpack:"remaining_ms"`
}

// ProgressFunc receives an encoded Progress frame on each estimator tick.
type ProgressFunc func(frame []byte)

// EncodePayload serializes a payload for the wire.
func EncodePayload(p Payload) ([]byte, error) {
	return msgpack.Marshal(p)
}

// DecodePayload parses a wire payload.
func DecodePayload(b []byte) (Payload, error) {
	var p Payload
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// EncodeOutcome serializes an outcome for the wire.
func EncodeOutcome(o Outcome) ([]byte, error) {
	return msgpack.Marshal(o)
}

// DecodeOutcome parses a wire outcome.
func DecodeOutcome(b []byte) (Outcome, error) {
	var o Outcome
	if err := msgpack.Unmarshal(b, &o); err != nil {
		return Outcome{}, fmt.Errorf("decode outcome: %w", err)
	}
	return o, nil
}

// DecodeProgress parses a wire progress frame.
func DecodeProgress(b []byte) (Progress, error) {
	var p Progress
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return Progress{}, fmt.Errorf("decode progress: %w", err)
	}
	return p, nil
}

// Runner executes serialized download payloads against a manager.
type Runner struct {
	mgr *downloader.Manager
	log *zap.Logger
}

// NewRunner wraps a manager for scheduler use.
func NewRunner(mgr *downloader.Manager, logger *zap.Logger) *Runner {
	return &Runner{mgr: mgr, log: logging.Or(logger)}
}

// Execute decodes the payload, runs the download to a terminal state, and
// returns the encoded outcome. Progress frames go to report when it is
// non-nil. Cancelling ctx cancels the transfer; the cancelled outcome is
// still returned. The terminal unit is acknowledged before returning, so
// the same key can be executed again.
func (r *Runner) Execute(ctx context.Context, payload []byte, report ProgressFunc) ([]byte, error) {
	p, err := DecodePayload(payload)
	if err != nil {
		return nil, err
	}
	policy, err := types.PolicyFromOrdinal(p.Policy)
	if err != nil {
		return nil, err
	}

	req := types.DownloadRequest{
		URL:         p.URL,
		Name:        p.Name,
		Extension:   p.Extension,
		Directory:   p.Directory,
		Version:     p.Version,
		TotalBytes:  p.TotalBytes,
		AccessToken: p.AccessToken,
	}

	l := &wireListener{report: report, terminal: make(chan struct{})}
	id, err := r.mgr.Submit(downloader.Submission{
		Request:    req,
		Policy:     policy,
		Foreground: p.Foreground,
		Listener:   l,
	})
	if err != nil {
		return nil, err
	}

	key := req.LogicalKey()
	r.log.Debug("executing payload",
		zap.String("id", id),
		zap.String("key", key),
		zap.String("policy", policy.String()))

	select {
	case <-l.terminal:
	case <-ctx.Done():
		r.mgr.Cancel(key)
		<-l.terminal
	}
	r.mgr.Acknowledge(key)

	out := l.outcome
	if out.Status == StatusSucceeded && out.Path != "" {
		// The last progress tick can trail the final write, so take
		// the byte count from the finished file.
		if info, err := os.Stat(out.Path); err == nil {
			out.Received = info.Size()
		}
	}
	return EncodeOutcome(out)
}

// wireListener maps listener callbacks onto wire frames. The manager
// serializes all callbacks after OnEnqueued on the unit's goroutine and
// fires exactly one terminal callback, so outcome needs no locking: it is
// written before terminal closes and read only after.
type wireListener struct {
	report   ProgressFunc
	received int64
	outcome  Outcome
	terminal chan struct{}
}

func (l *wireListener) OnEnqueued() {}

func (l *wireListener) OnRunning(received int64, rate float64, remaining time.Duration) {
	l.received = received
	if l.report == nil {
		return
	}
	frame, err := msgpack.Marshal(Progress{
		Received:    received,
		Rate:        int64(rate),
		RemainingMS: remaining.Milliseconds(),
	})
	if err == nil {
		l.report(frame)
	}
}

func (l *wireListener) OnSucceeded(path string) {
	l.settle(Outcome{Status: StatusSucceeded, Path: path, Received: l.received})
}

func (l *wireListener) OnFailed(message string) {
	l.settle(Outcome{Status: StatusFailed, Message: message, Received: l.received})
}

func (l *wireListener) OnCancelled() {
	l.settle(Outcome{Status: StatusCancelled, Received: l.received})
}

func (l *wireListener) OnBlocked() {
	l.settle(Outcome{Status: StatusBlocked, Received: l.received})
}

func (l *wireListener) settle(o Outcome) {
	l.outcome = o
	close(l.terminal)
}
