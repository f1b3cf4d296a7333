// Package engine streams remote files to local paths over HTTP, resuming
// from a byte offset when the server cooperates.
package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/downpour-dl/downpour/internal/destination"
	"github.com/downpour-dl/downpour/internal/engine/events"
	"github.com/downpour-dl/downpour/internal/engine/types"
	"github.com/downpour-dl/downpour/internal/logging"
	"github.com/downpour-dl/downpour/internal/progress"
)

// Transfer executes single-connection downloads against a shared client.
type Transfer struct {
	client  *http.Client
	runtime *types.RuntimeConfig
	log     *zap.Logger
}

// NewTransfer wires a transfer executor. client may come from NewClient or
// any other *http.Client; runtime and logger may be nil.
func NewTransfer(client *http.Client, runtime *types.RuntimeConfig, logger *zap.Logger) *Transfer {
	if client == nil {
		client = NewClient(runtime, logger)
	}
	return &Transfer{
		client:  client,
		runtime: runtime,
		log:     logging.Or(logger),
	}
}

// Run streams req.URL into dest.Path starting at dest.Offset and reports
// lifecycle events to emit. Exactly one terminal event is emitted per call:
// Completed when Run returns nil, Cancelled when the context was cancelled,
// Failed otherwise. The destination file is not touched until the server
// response is accepted, and partial data is never deleted.
func (t *Transfer) Run(ctx context.Context, req types.DownloadRequest, dest types.Destination, emit events.Sink) error {
	if emit == nil {
		emit = func(events.Event) {}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		terr := &TransportError{URL: req.URL, Err: err}
		emit(events.Failed{Path: dest.Path, Err: terr})
		return terr
	}

	httpReq.Header.Set("User-Agent", t.runtime.GetUserAgent())
	if req.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	}
	if dest.Offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", dest.Offset))
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			emit(events.Cancelled{Path: dest.Path, Received: dest.Offset})
			return ctx.Err()
		}
		terr := &TransportError{URL: req.URL, Err: err}
		emit(events.Failed{Path: dest.Path, Err: terr})
		return terr
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	startAt := dest.Offset
	truncate := false
	var total int64

	switch resp.StatusCode {
	case http.StatusPartialContent:
		header := resp.Header.Get("Content-Range")
		rangeStart, _, rangeTotal, crErr := parseContentRange(header)
		if crErr != nil {
			perr := &ProtocolError{
				URL:    req.URL,
				Status: resp.StatusCode,
				Reason: fmt.Sprintf("unparseable Content-Range %q", header),
			}
			emit(events.Failed{Path: dest.Path, Err: perr})
			return perr
		}
		if rangeStart != dest.Offset {
			perr := &ProtocolError{
				URL:    req.URL,
				Status: resp.StatusCode,
				Reason: fmt.Sprintf("asked to resume at %d, server answered range starting at %d", dest.Offset, rangeStart),
			}
			emit(events.Failed{Path: dest.Path, Err: perr})
			return perr
		}
		switch {
		case rangeTotal > 0:
			total = rangeTotal
		case resp.ContentLength >= 0:
			total = dest.Offset + resp.ContentLength
		default:
			total = req.TotalBytes
		}

	case http.StatusOK:
		// Either a fresh download, or the server ignored the Range
		// header. In the second case resumed bytes are worthless:
		// start over from zero.
		if dest.Offset > 0 {
			t.log.Debug("server ignored range request, restarting from zero",
				zap.String("url", req.URL),
				zap.Int64("offset", dest.Offset))
		}
		startAt = 0
		truncate = true
		if resp.ContentLength >= 0 {
			total = resp.ContentLength
		} else {
			total = req.TotalBytes
		}

	default:
		perr := &ProtocolError{URL: req.URL, Status: resp.StatusCode}
		emit(events.Failed{Path: dest.Path, Err: perr})
		return perr
	}

	flags := os.O_CREATE | os.O_WRONLY
	if truncate {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(dest.Path, flags, 0o644)
	if err != nil {
		serr := &destination.StorageError{Op: "open", Path: dest.Path, Err: err}
		emit(events.Failed{Path: dest.Path, Err: serr})
		return serr
	}
	closed := false
	defer func() {
		if !closed {
			_ = out.Close()
		}
	}()

	if !truncate && startAt > 0 {
		if _, err := out.Seek(startAt, io.SeekStart); err != nil {
			serr := &destination.StorageError{Op: "seek", Path: dest.Path, Err: err}
			emit(events.Failed{Path: dest.Path, Err: serr})
			return serr
		}
	}

	emit(events.Started{Path: dest.Path, Offset: startAt, Total: total})

	began := time.Now()
	est := progress.NewEstimator(total, startAt)
	buf := make([]byte, t.runtime.GetBufferSize())

	for {
		// Cancellation point between chunks. A transfer blocked inside
		// Read is unwound through the request context instead.
		select {
		case <-ctx.Done():
			emit(events.Cancelled{Path: dest.Path, Received: est.Received()})
			return ctx.Err()
		default:
		}

		nr, readErr := resp.Body.Read(buf)
		if nr > 0 {
			nw, writeErr := out.Write(buf[:nr])
			if nw > 0 {
				if sample, ok := est.Observe(int64(nw), time.Now()); ok {
					emit(events.Progress{
						Received:  sample.Received,
						Rate:      sample.Rate,
						Remaining: sample.Remaining,
					})
				}
			}
			if writeErr != nil {
				serr := &destination.StorageError{Op: "write", Path: dest.Path, Err: writeErr}
				emit(events.Failed{Path: dest.Path, Err: serr})
				return serr
			}
			if nw != nr {
				serr := &destination.StorageError{Op: "write", Path: dest.Path, Err: io.ErrShortWrite}
				emit(events.Failed{Path: dest.Path, Err: serr})
				return serr
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			if ctx.Err() != nil {
				emit(events.Cancelled{Path: dest.Path, Received: est.Received()})
				return ctx.Err()
			}
			terr := &TransportError{URL: req.URL, Err: readErr}
			emit(events.Failed{Path: dest.Path, Err: terr})
			return terr
		}
	}

	if err := out.Sync(); err != nil {
		serr := &destination.StorageError{Op: "sync", Path: dest.Path, Err: err}
		emit(events.Failed{Path: dest.Path, Err: serr})
		return serr
	}
	closed = true
	if err := out.Close(); err != nil {
		serr := &destination.StorageError{Op: "close", Path: dest.Path, Err: err}
		emit(events.Failed{Path: dest.Path, Err: serr})
		return serr
	}

	elapsed := time.Since(began)
	t.log.Debug("transfer complete",
		zap.String("path", dest.Path),
		zap.Int64("received", est.Received()),
		zap.Duration("elapsed", elapsed.Round(time.Millisecond)))

	emit(events.Completed{Path: dest.Path, Received: est.Received(), Elapsed: elapsed})
	return nil
}

// parseContentRange splits "bytes <start>-<end>/<total>". A total of "*"
// comes back as -1.
func parseContentRange(header string) (start, end, total int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("missing bytes unit in %q", header)
	}

	rangePart, totalPart, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("missing total in %q", header)
	}

	first, last, ok := strings.Cut(rangePart, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("missing range span in %q", header)
	}

	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, 0, err
	}
	if end, err = strconv.ParseInt(last, 10, 64); err != nil {
		return 0, 0, 0, err
	}

	if totalPart == "*" {
		total = -1
	} else if total, err = strconv.ParseInt(totalPart, 10, 64); err != nil {
		return 0, 0, 0, err
	}

	return start, end, total, nil
}
