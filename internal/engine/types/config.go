package types

import "time"

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
)

// Transfer tuning
const (
	// ChunkSize is the read buffer used when streaming a response body.
	// Cancellation is checked between chunks, so this also bounds
	// cancellation latency.
	ChunkSize = 32 * KB

	// SampleInterval is the minimum spacing between progress samples.
	SampleInterval = 200 * time.Millisecond
)

// HTTP client tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DefaultExpectContinueTimeout = 1 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
	ProbeTimeout                 = 30 * time.Second
)

// Orchestration defaults
const (
	DefaultMaxConcurrentDownloads = 3
)

const defaultUserAgent = "downpour/1.0"

// RuntimeConfig holds dynamic engine settings derived from user config.
// A nil RuntimeConfig is valid everywhere; accessors fall back to defaults.
type RuntimeConfig struct {
	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool
	BufferSize          int
}

// GetUserAgent returns the configured user agent or the default.
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return defaultUserAgent
	}
	return r.UserAgent
}

// GetProxyURL returns the configured proxy URL, empty for direct.
func (r *RuntimeConfig) GetProxyURL() string {
	if r == nil {
		return ""
	}
	return r.ProxyURL
}

// GetSkipTLSVerification reports whether certificate checks are disabled.
func (r *RuntimeConfig) GetSkipTLSVerification() bool {
	return r != nil && r.SkipTLSVerification
}

// GetBufferSize returns the configured stream buffer size or the default.
func (r *RuntimeConfig) GetBufferSize() int {
	if r == nil || r.BufferSize <= 0 {
		return ChunkSize
	}
	return r.BufferSize
}
