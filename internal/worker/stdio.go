package worker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame kinds crossing the stdio boundary. The scheduler writes a single
// payload frame and reads progress frames until the outcome frame.
const (
	FramePayload  = "payload"
	FrameProgress = "progress"
	FrameOutcome  = "outcome"
)

// MaxFrameSize bounds a single length-prefixed frame. Frames carry
// requests and counters, never file data.
const MaxFrameSize = 1 << 20

const lengthPrefixSize = 4

// Frame is one length-prefixed unit on the stdio stream. Body holds an
// encoded Payload, Progress, or Outcome according to Kind.
type Frame struct {
	Kind string `msgpack:"kind"`
	Body []byte `msgpack:"body"`
}

// WriteFrame encodes body under kind and writes it with a 4-byte
// big-endian length prefix.
func WriteFrame(w io.Writer, kind string, body []byte) error {
	buf, err := msgpack.Marshal(Frame{Kind: kind, Body: body})
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", kind, err)
	}
	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(buf)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame prefix: %w", err)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write %s frame: %w", kind, err)
	}
	return nil
}

// ReadFrame reads one frame from r. A clean end of stream returns io.EOF;
// a stream cut mid-frame returns a wrapped io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (Frame, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("read frame prefix: %w", err)
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxFrameSize {
		return Frame{}, fmt.Errorf("frame size %d exceeds maximum %d", size, MaxFrameSize)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("read frame body: %w", err)
	}

	var f Frame
	if err := msgpack.Unmarshal(buf, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// Serve is the executor side of the process boundary: it reads one payload
// frame from in, runs the download, and streams progress frames followed
// by the final outcome frame to out. The scheduler owns the process
// lifetime and reads frames until EOF.
func (r *Runner) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	f, err := ReadFrame(in)
	if err != nil {
		return fmt.Errorf("read payload frame: %w", err)
	}
	if f.Kind != FramePayload {
		return fmt.Errorf("unexpected frame kind %q", f.Kind)
	}

	// Progress callbacks are serialized on the unit's goroutine and stop
	// before Execute returns, so writeErr needs no locking.
	var writeErr error
	report := func(frame []byte) {
		if writeErr == nil {
			writeErr = WriteFrame(out, FrameProgress, frame)
		}
	}

	outcome, err := r.Execute(ctx, f.Body, report)
	if err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}
	return WriteFrame(out, FrameOutcome, outcome)
}
