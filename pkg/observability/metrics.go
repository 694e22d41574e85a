package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SweepMetrics holds the collectors describing retention sweeps.
type SweepMetrics struct {
	Runs        *prometheus.CounterVec
	Files       *prometheus.CounterVec
	Bytes       *prometheus.CounterVec
	DirsRemoved prometheus.Counter
	Failures    *prometheus.CounterVec
	Duration    prometheus.Histogram
	LastSuccess prometheus.Gauge
	HTTP        *prometheus.HistogramVec
}

// RunStats is what one sweep reports to the collectors.
type RunStats struct {
	DryRun      bool
	Files       int
	Bytes       int64
	DirsRemoved int
	Failures    map[string]int
	Duration    time.Duration
	Succeeded   bool
	FinishedAt  time.Time
}

// NewSweepMetrics registers the collectors on reg, or on the default
// registerer when reg is nil.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &SweepMetrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tmpsweep_runs_total",
			Help: "The total number of sweeps by result",
		}, []string{"result"}),
		Files: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tmpsweep_files_total",
			Help: "Files deleted, or identified in dry runs",
		}, []string{"mode"}),
		Bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tmpsweep_bytes_total",
			Help: "Bytes deleted, or identified in dry runs",
		}, []string{"mode"}),
		DirsRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "tmpsweep_dirs_removed_total",
			Help: "Empty retention directories pruned",
		}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tmpsweep_failures_total",
			Help: "Isolated per-directory and per-file failures",
		}, []string{"op"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tmpsweep_run_duration_seconds",
			Help:    "Duration of sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "tmpsweep_last_success_timestamp_seconds",
			Help: "Unix time of the last sweep that listed the root",
		}),
		HTTP: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tmpsweep_http_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// Observe records one sweep. A nil receiver is a no-op.
func (m *SweepMetrics) Observe(s RunStats) {
	if m == nil {
		return
	}

	mode := "execute"
	if s.DryRun {
		mode = "dry_run"
	}
	result := "success"
	if !s.Succeeded {
		result = "failure"
	}

	m.Runs.WithLabelValues(result).Inc()
	m.Files.WithLabelValues(mode).Add(float64(s.Files))
	m.Bytes.WithLabelValues(mode).Add(float64(s.Bytes))
	m.DirsRemoved.Add(float64(s.DirsRemoved))
	for op, n := range s.Failures {
		m.Failures.WithLabelValues(op).Add(float64(n))
	}
	m.Duration.Observe(s.Duration.Seconds())
	if s.Succeeded {
		m.LastSuccess.Set(float64(s.FinishedAt.Unix()))
	}
}

// WriteTextfile dumps everything gathered by g to path in the text
// exposition format, for the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
