// Package metrics exposes Prometheus instrumentation for the download
// manager. All metric names carry the downpour_ prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the download metrics. A nil *Collector is valid and
// records nothing, so callers never need to guard instrumentation sites.
type Collector struct {
	submissionsTotal prometheus.Counter
	outcomesTotal    *prometheus.CounterVec
	bytesTotal       prometheus.Counter
	durationSeconds  prometheus.Histogram
	fileSizeBytes    prometheus.Histogram
	inProgress       prometheus.Gauge
}

// New builds and registers the collector. reg defaults to the global
// registry when nil.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		submissionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downpour_submissions_total",
			Help: "Download submissions accepted by the manager",
		}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "downpour_outcomes_total",
			Help: "Terminal download outcomes by state and error category",
		}, []string{"state", "category"}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downpour_bytes_received_total",
			Help: "Bytes pulled off the network across all transfers",
		}),
		durationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "downpour_transfer_duration_seconds",
			Help:    "Wall time of successful transfers",
			Buckets: prometheus.DefBuckets,
		}),
		fileSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "downpour_file_size_bytes",
			Help: "Final size of successfully downloaded files",
			Buckets: []float64{
				1024,       // 1KB
				10240,      // 10KB
				102400,     // 100KB
				1048576,    // 1MB
				10485760,   // 10MB
				104857600,  // 100MB
				1073741824, // 1GB
			},
		}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "downpour_transfers_in_progress",
			Help: "Transfers currently streaming",
		}),
	}

	reg.MustRegister(
		c.submissionsTotal,
		c.outcomesTotal,
		c.bytesTotal,
		c.durationSeconds,
		c.fileSizeBytes,
		c.inProgress,
	)

	return c
}

// RecordSubmission counts an accepted submission.
func (c *Collector) RecordSubmission() {
	if c == nil {
		return
	}
	c.submissionsTotal.Inc()
}

// TransferStarted marks a transfer as streaming.
func (c *Collector) TransferStarted() {
	if c == nil {
		return
	}
	c.inProgress.Inc()
}

// TransferEnded unmarks a streaming transfer. Call only after a matching
// TransferStarted.
func (c *Collector) TransferEnded() {
	if c == nil {
		return
	}
	c.inProgress.Dec()
}

// RecordOutcome counts one terminal state. category is the error category
// for failures and "none" otherwise.
func (c *Collector) RecordOutcome(state, category string) {
	if c == nil {
		return
	}
	c.outcomesTotal.WithLabelValues(state, category).Inc()
}

// RecordBytes adds bytes actually transferred during a run.
func (c *Collector) RecordBytes(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesTotal.Add(float64(n))
}

// RecordDuration observes a successful transfer's wall time.
func (c *Collector) RecordDuration(seconds float64) {
	if c == nil {
		return
	}
	c.durationSeconds.Observe(seconds)
}

// RecordFileSize observes the final size of a completed file.
func (c *Collector) RecordFileSize(bytes int64) {
	if c == nil {
		return
	}
	c.fileSizeBytes.Observe(float64(bytes))
}
