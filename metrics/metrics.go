// Package metrics provides Prometheus metrics for meter reading runs.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes.
const (
	OutcomeRead       = "read"
	OutcomeRegionOnly = "region_only"
	OutcomeError      = "error"
)

// Metrics contains all Prometheus metrics related to the detection pipeline.
type Metrics struct {
	StageDuration   *prometheus.HistogramVec
	StageDetections *prometheus.CounterVec
	Runs            *prometheus.CounterVec
	RecordsSaved    prometheus.Counter
	GallerySize     prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the pipeline metrics and registers them with registry.
// It returns an error if metric registration fails.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, errors.Wrap(err, "failed to register meter metrics")
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meter_stage_duration_seconds",
			Help:    "Wall-clock time of one detection stage",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
		[]string{"stage"},
	)
	m.StageDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meter_stage_detections_total",
			Help: "Total number of detections kept after suppression, by stage",
		},
		[]string{"stage"},
	)
	m.Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meter_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"},
	)
	m.RecordsSaved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meter_records_saved_total",
			Help: "Total number of result directories written",
		},
	)
	m.GallerySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meter_gallery_size",
			Help: "Number of results currently in the gallery index",
		},
	)
}

// RecordStage records the duration and detection count of one stage.
func (m *Metrics) RecordStage(stage string, durationSeconds float64, detections int) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
	m.StageDetections.WithLabelValues(stage).Add(float64(detections))
}

// RecordRun counts a finished run under outcome.
func (m *Metrics) RecordRun(outcome string) {
	m.Runs.WithLabelValues(outcome).Inc()
}

// RecordSave counts a written record and updates the gallery size.
func (m *Metrics) RecordSave(gallerySize int) {
	m.RecordsSaved.Inc()
	m.GallerySize.Set(float64(gallerySize))
}

// SetGallerySize sets the gallery gauge, e.g. after the index is rebuilt from disk.
func (m *Metrics) SetGallerySize(n int) {
	m.GallerySize.Set(float64(n))
}

// WriteToTextfile writes every metric in the registry in the text exposition
// format, for node_exporter's textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry), "writing metrics to %s", path)
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.StageDuration.Describe(ch)
	m.StageDetections.Describe(ch)
	m.Runs.Describe(ch)
	ch <- m.RecordsSaved.Desc()
	ch <- m.GallerySize.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.StageDuration.Collect(ch)
	m.StageDetections.Collect(ch)
	m.Runs.Collect(ch)
	ch <- m.RecordsSaved
	ch <- m.GallerySize
}
