// Package metrics records Prometheus metrics for generation runs. Batch runs
// dump them in the node exporter textfile format.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jilei-hao/scherzo/internal/models"
)

// Label outcomes.
const (
	OutcomeGenerated = "generated"
	OutcomeEmpty     = "empty"
	OutcomeCached    = "cached"
	OutcomeFailed    = "failed"
)

const namespace = "scherzo"

// Recorder owns a registry and the collectors of one process.
// All methods are safe on a nil *Recorder.
type Recorder struct {
	registry *prometheus.Registry

	labels    *prometheus.CounterVec
	duration  prometheus.Histogram
	triangles prometheus.Histogram
	inFlight  prometheus.Gauge
	runs      *prometheus.CounterVec
	runTime   prometheus.Histogram
}

// New registers the generation collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		labels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_surfaces_total",
			Help:      "Label surfaces processed, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "label_generation_seconds",
			Help:      "Time spent extracting one label surface.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		triangles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "label_triangles",
			Help:      "Triangles per generated label surface.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "label_generations_in_flight",
			Help:      "Label surfaces currently being extracted.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Model set generation requests, by result.",
		}, []string{"result"}),
		runTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_seconds",
			Help:      "Wall time of model set generation requests.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	r.registry.MustRegister(r.labels, r.duration, r.triangles, r.inFlight, r.runs, r.runTime)
	return r
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Start marks the beginning of one label extraction and returns the function
// that ends it.
func (r *Recorder) Start() func() {
	if r == nil {
		return func() {}
	}
	r.inFlight.Inc()
	return r.inFlight.Dec
}

// ObserveLabel records the outcome of one label.
func (r *Recorder) ObserveLabel(outcome string, elapsed time.Duration, m models.Mesh) {
	if r == nil {
		return
	}
	r.labels.WithLabelValues(outcome).Inc()
	if outcome == OutcomeGenerated || outcome == OutcomeEmpty {
		r.duration.Observe(elapsed.Seconds())
	}
	if outcome == OutcomeGenerated {
		r.triangles.Observe(float64(m.TriangleCount()))
	}
}

// ObserveRun records one finished request; err is the request's error, if any.
func (r *Recorder) ObserveRun(elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.runs.WithLabelValues(result).Inc()
	r.runTime.Observe(elapsed.Seconds())
}

// WriteTextfile writes the current metrics to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return errors.Wrapf(prometheus.WriteToTextfile(path, r.registry), "writing metrics to %s", path)
}
