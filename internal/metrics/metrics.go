// Package metrics exposes Prometheus counters for index runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure reasons used as the "reason" label of files_failed_total.
const (
	ReasonProbe   = "probe"
	ReasonNoVideo = "no_video"
	ReasonOther   = "other"
)

// Metrics holds the collectors for one process. Each instance owns its
// registry so tests and parallel managers don't collide.
type Metrics struct {
	registry *prometheus.Registry

	FilesProbed          prometheus.Counter
	FilesFresh           prometheus.Counter
	FilesFailed          *prometheus.CounterVec
	RecordsPruned        prometheus.Counter
	DirectoriesPersisted prometheus.Counter
	StoreErrors          *prometheus.CounterVec
	ProbeDuration        prometheus.Histogram
	RunDuration          prometheus.Histogram
	LastRunTimestamp     prometheus.Gauge
	Records              prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FilesProbed: f.NewCounter(prometheus.CounterOpts{
			Name: "videomap_files_probed_total",
			Help: "Video files whose metadata was re-read",
		}),
		FilesFresh: f.NewCounter(prometheus.CounterOpts{
			Name: "videomap_files_fresh_total",
			Help: "Video files skipped because their cached record was fresh",
		}),
		FilesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "videomap_files_failed_total",
			Help: "Video files whose metadata could not be read",
		}, []string{"reason"}),
		RecordsPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "videomap_records_pruned_total",
			Help: "Cached records dropped because their file or directory vanished",
		}),
		DirectoriesPersisted: f.NewCounter(prometheus.CounterOpts{
			Name: "videomap_directories_persisted_total",
			Help: "Directory groups written to the cache store",
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "videomap_store_errors_total",
			Help: "Failed cache store operations",
		}, []string{"op"}),
		ProbeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "videomap_probe_duration_seconds",
			Help:    "Time spent reading metadata for one file",
			Buckets: prometheus.DefBuckets,
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "videomap_run_duration_seconds",
			Help:    "Wall time of a full index run",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "videomap_last_run_timestamp_seconds",
			Help: "Unix time the last index run finished",
		}),
		Records: f.NewGauge(prometheus.GaugeOpts{
			Name: "videomap_records",
			Help: "Records held in memory after the last run",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records the end of an index run.
func (m *Metrics) ObserveRun(started, finished time.Time, records int) {
	m.RunDuration.Observe(finished.Sub(started).Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
	m.Records.Set(float64(records))
}

// WriteTextfile writes the current values in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
