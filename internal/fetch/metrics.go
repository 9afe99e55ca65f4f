// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records fetch activity on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	attempts *prometheus.CounterVec
	results  *prometheus.CounterVec
	bytes    prometheus.Counter
	duration *prometheus.HistogramVec
}

// NewMetrics creates and registers the fetch collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkgbake",
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "Transfer attempts by scheme and outcome.",
		}, []string{"scheme", "outcome"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkgbake",
			Subsystem: "fetch",
			Name:      "sources_total",
			Help:      "Sources by final status.",
		}, []string{"status"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pkgbake",
			Subsystem: "fetch",
			Name:      "bytes_total",
			Help:      "Bytes written to part files.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pkgbake",
			Subsystem: "fetch",
			Name:      "transfer_seconds",
			Help:      "Duration of single transfer attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"scheme"}),
	}
	m.registry.MustRegister(m.attempts, m.results, m.bytes, m.duration)
	return m
}

// Registry returns the registry holding the fetch collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes the metrics in text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeAttempt(scheme string, d time.Duration, n int64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.attempts.WithLabelValues(scheme, outcome).Inc()
	m.duration.WithLabelValues(scheme).Observe(d.Seconds())
	if n > 0 {
		m.bytes.Add(float64(n))
	}
}

func (m *Metrics) observeResult(s Status) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(string(s)).Inc()
}
