package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/downpour-dl/downpour/internal/testutil"
)

// frameStream reads every frame out of a finished stream.
func frameStream(t *testing.T, buf *bytes.Buffer) []Frame {
	t.Helper()
	var frames []Frame
	for {
		f, err := ReadFrame(buf)
		if errors.Is(err, io.EOF) {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
}

func payloadFrame(t *testing.T, p Payload) *bytes.Buffer {
	t.Helper()
	wire, err := EncodePayload(p)
	require.NoError(t, err)
	in := &bytes.Buffer{}
	require.NoError(t, WriteFrame(in, FramePayload, wire))
	return in
}

func TestServeStreamsProgressThenOutcome(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithSize(1000))
	r, _, _ := newTestRunner(t)

	in := payloadFrame(t, payloadFor(m.URL()))
	out := &bytes.Buffer{}
	require.NoError(t, r.Serve(context.Background(), in, out))

	frames := frameStream(t, out)
	require.NotEmpty(t, frames)

	last := frames[len(frames)-1]
	require.Equal(t, FrameOutcome, last.Kind)
	outcome, err := DecodeOutcome(last.Body)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, outcome.Status)
	assert.Equal(t, int64(1000), outcome.Received)

	got, err := os.ReadFile(outcome.Path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got, m.Body()), "file differs from served body")

	require.Greater(t, len(frames), 1, "expected progress before the outcome")
	for _, f := range frames[:len(frames)-1] {
		require.Equal(t, FrameProgress, f.Kind)
		_, err := DecodeProgress(f.Body)
		require.NoError(t, err)
	}
}

func TestServeReportsFailureOutcome(t *testing.T) {
	m := testutil.NewMockServerT(t, testutil.WithStatus(500))
	r, _, _ := newTestRunner(t)

	out := &bytes.Buffer{}
	require.NoError(t, r.Serve(context.Background(), payloadFrame(t, payloadFor(m.URL())), out))

	frames := frameStream(t, out)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	require.Equal(t, FrameOutcome, last.Kind)
	outcome, err := DecodeOutcome(last.Body)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Message, "500")
}

func TestServeRejectsUnexpectedFrameKind(t *testing.T) {
	r, _, _ := newTestRunner(t)

	in := &bytes.Buffer{}
	require.NoError(t, WriteFrame(in, FrameOutcome, nil))

	err := r.Serve(context.Background(), in, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame kind")
}

func TestServeRejectsEmptyStream(t *testing.T) {
	r, _, _ := newTestRunner(t)

	err := r.Serve(context.Background(), &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read payload frame")
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxFrameSize+1)

	_, err := ReadFrame(bytes.NewReader(prefix[:]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestReadFrameRejectsTruncatedBody(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteFrame(buf, FramePayload, []byte("abc")))
	cut := buf.Bytes()[:buf.Len()-2]

	_, err := ReadFrame(bytes.NewReader(cut))
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
}
