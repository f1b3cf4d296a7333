// Package testutil provides a configurable HTTP origin for transfer tests.
package testutil

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// MockServer serves a fixed byte sequence over HTTP with optional range
// support, injected failures, and per-request accounting. The body is a
// deterministic pattern so tests can compare downloaded files byte for byte.
type MockServer struct {
	Server *httptest.Server

	size        int64
	rangesOK    bool
	status      int
	authToken   string
	failFirst   int
	failAfter   int64
	stallAfter  int64
	latency     time.Duration
	byteLatency time.Duration
	handler     http.HandlerFunc

	// Tracking
	Requests       atomic.Int64
	RangeRequests  atomic.Int64
	FullRequests   atomic.Int64
	BytesServed    atomic.Int64
	LastRangeStart atomic.Int64

	reqMu  sync.Mutex
	reqNum int

	data []byte
}

// MockServerOption configures a MockServer.
type MockServerOption func(*MockServer)

// WithSize sets the size of the served body in bytes.
func WithSize(n int64) MockServerOption {
	return func(m *MockServer) {
		m.size = n
	}
}

// WithRangeSupport toggles Range handling. When disabled the server answers
// every request, ranged or not, with 200 and the full body.
func WithRangeSupport(enabled bool) MockServerOption {
	return func(m *MockServer) {
		m.rangesOK = enabled
	}
}

// WithStatus forces every response to the given status with no body.
func WithStatus(code int) MockServerOption {
	return func(m *MockServer) {
		m.status = code
	}
}

// WithAuthToken makes the server reject requests that do not carry
// "Authorization: Bearer <token>" with 401.
func WithAuthToken(token string) MockServerOption {
	return func(m *MockServer) {
		m.authToken = token
	}
}

// WithFailFirstRequests answers the first n requests with 500, then recovers.
func WithFailFirstRequests(n int) MockServerOption {
	return func(m *MockServer) {
		m.failFirst = n
	}
}

// WithFailAfterBytes drops the connection after serving n bytes of a
// response body, leaving the advertised Content-Length unfulfilled.
func WithFailAfterBytes(n int64) MockServerOption {
	return func(m *MockServer) {
		m.failAfter = n
	}
}

// WithStallAfterBytes serves n bytes, flushes them, then blocks until the
// client goes away. Useful for cancelling a transfer at a known offset.
func WithStallAfterBytes(n int64) MockServerOption {
	return func(m *MockServer) {
		m.stallAfter = n
	}
}

// WithLatency delays every response by d.
func WithLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) {
		m.latency = d
	}
}

// WithByteLatency sleeps d per byte served.
func WithByteLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) {
		m.byteLatency = d
	}
}

// WithHandler bypasses the built-in behavior entirely.
func WithHandler(h http.HandlerFunc) MockServerOption {
	return func(m *MockServer) {
		m.handler = h
	}
}

// NewMockServer starts a mock origin with the given options.
func NewMockServer(opts ...MockServerOption) *MockServer {
	m := newMockServer(opts)
	m.Server = startServer(http.HandlerFunc(m.handleRequest))
	return m
}

// NewMockServerT starts a mock origin and skips the test if no IPv4
// listener can be bound.
func NewMockServerT(t *testing.T, opts ...MockServerOption) *MockServer {
	t.Helper()
	m := newMockServer(opts)
	srv := startServerT(t, http.HandlerFunc(m.handleRequest))
	if srv == nil {
		return nil
	}
	m.Server = srv
	t.Cleanup(m.Close)
	return m
}

func newMockServer(opts []MockServerOption) *MockServer {
	m := &MockServer{
		size:     256 * 1024,
		rangesOK: true,
	}
	m.LastRangeStart.Store(-1)

	for _, opt := range opts {
		opt(m)
	}

	m.data = PatternBytes(m.size)
	return m
}

// URL returns the server's base URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}

// Close shuts the server down.
func (m *MockServer) Close() {
	if m.Server != nil {
		m.Server.Close()
	}
}

// Body returns a copy of the full byte sequence the server offers.
func (m *MockServer) Body() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// PatternBytes builds n bytes of the deterministic sequence served by
// MockServer. The modulus is prime so the pattern never realigns with
// power-of-two chunk boundaries.
func PatternBytes(n int64) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func (m *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if m.handler != nil {
		m.handler(w, r)
		return
	}

	m.Requests.Add(1)

	m.reqMu.Lock()
	m.reqNum++
	reqNum := m.reqNum
	m.reqMu.Unlock()

	if m.latency > 0 {
		time.Sleep(m.latency)
	}

	if m.authToken != "" && r.Header.Get("Authorization") != "Bearer "+m.authToken {
		http.Error(w, "missing or invalid token", http.StatusUnauthorized)
		return
	}

	if m.failFirst > 0 && reqNum <= m.failFirst {
		http.Error(w, "transient failure", http.StatusInternalServerError)
		return
	}

	if m.status != 0 {
		w.WriteHeader(m.status)
		return
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(m.size, 10))
		if m.rangesOK {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	start := int64(0)
	end := m.size - 1

	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" && m.rangesOK {
		m.RangeRequests.Add(1)

		var err error
		start, end, err = parseRange(rangeHeader, m.size)
		if err != nil {
			http.Error(w, "unsatisfiable range", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		m.LastRangeStart.Store(start)

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, m.size))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		m.FullRequests.Add(1)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(m.size, 10))
		if m.rangesOK {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.WriteHeader(http.StatusOK)
	}

	m.serveBody(w, r, start, end)
}

// serveBody streams data[start..end] in small chunks so failure and stall
// points land mid-body rather than on response boundaries.
func (m *MockServer) serveBody(w http.ResponseWriter, r *http.Request, start, end int64) {
	flusher, _ := w.(http.Flusher)

	length := end - start + 1
	written := int64(0)

	for written < length {
		if m.failAfter > 0 && written >= m.failAfter {
			// Returning with Content-Length unmet makes the server
			// sever the connection under the client.
			return
		}

		if m.stallAfter > 0 && written >= m.stallAfter {
			if flusher != nil {
				flusher.Flush()
			}
			<-r.Context().Done()
			return
		}

		chunk := int64(4 * 1024)
		if m.failAfter > 0 && written < m.failAfter && written+chunk > m.failAfter {
			chunk = m.failAfter - written
		}
		if m.stallAfter > 0 && written < m.stallAfter && written+chunk > m.stallAfter {
			chunk = m.stallAfter - written
		}
		if remaining := length - written; remaining < chunk {
			chunk = remaining
		}

		from := start + written
		n, err := w.Write(m.data[from : from+chunk])
		if err != nil {
			return
		}

		written += int64(n)
		m.BytesServed.Add(int64(n))

		if m.byteLatency > 0 {
			time.Sleep(m.byteLatency * time.Duration(n))
		}
	}
}

// parseRange understands the two shapes a resuming client sends:
// "bytes=start-" and "bytes=start-end".
func parseRange(header string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("range unit missing in %q", header)
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok || first == "" {
		return 0, 0, fmt.Errorf("unsupported range shape %q", header)
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, err
	}

	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil {
			return 0, 0, err
		}
	}

	if start < 0 || start > end || start >= size {
		return 0, 0, fmt.Errorf("range %d-%d outside body of %d bytes", start, end, size)
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}

// startServer binds an httptest server to IPv4 explicitly; some sandboxes
// offer no IPv6 loopback.
func startServer(handler http.Handler) *httptest.Server {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return httptest.NewServer(handler)
	}

	srv := &httptest.Server{
		Listener: ln,
		Config:   &http.Server{Handler: handler},
	}
	srv.Start()
	return srv
}

func startServerT(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
		return nil
	}

	srv := &httptest.Server{
		Listener: ln,
		Config:   &http.Server{Handler: handler},
	}
	srv.Start()
	return srv
}
