// Package metrics records probe and run measurements as Prometheus metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/nao1215/devprint/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	ProbeDurationName = "devprint_probe_duration_seconds"
	ProbeResultsName  = "devprint_probe_results_total"
	RunsName          = "devprint_runs_total"
	RunDurationName   = "devprint_run_duration_seconds"
	SinkErrorsName    = "devprint_sink_errors_total"
)

// Recorder collects aggregation metrics. It implements aggregator.Observer.
type Recorder struct {
	gatherer prometheus.Gatherer

	probeDuration *prometheus.HistogramVec
	probeResults  *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	sinkErrors    *prometheus.CounterVec
}

// New creates a Recorder whose metrics are registered on a fresh registry.
func New() *Recorder {
	r, err := NewWithRegistry(prometheus.NewRegistry())
	if err != nil {
		// A fresh registry cannot hold conflicting collectors.
		panic(err)
	}
	return r
}

// NewWithRegistry creates a Recorder registered on reg.
func NewWithRegistry(reg *prometheus.Registry) (*Recorder, error) {
	r := &Recorder{
		gatherer: reg,
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    ProbeDurationName,
			Help:    "Time for a probe to settle.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"probe"}),
		probeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: ProbeResultsName,
			Help: "Settled probes by outcome.",
		}, []string{"probe", "status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: RunsName,
			Help: "Completed aggregation runs.",
		}, []string{"partial_failure"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    RunDurationName,
			Help:    "Time from the start of a run to its record.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: SinkErrorsName,
			Help: "Failed record deliveries by sink.",
		}, []string{"sink"}),
	}

	for _, c := range []prometheus.Collector{r.probeDuration, r.probeResults, r.runs, r.runDuration, r.sinkErrors} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return r, nil
}

// ObserveProbe records a settled probe.
func (r *Recorder) ObserveProbe(probe string, status model.ProbeStatus, d time.Duration) {
	r.probeDuration.WithLabelValues(probe).Observe(d.Seconds())
	r.probeResults.WithLabelValues(probe, string(status)).Inc()
}

// ObserveRun records a completed run.
func (r *Recorder) ObserveRun(partial bool, d time.Duration) {
	label := "false"
	if partial {
		label = "true"
	}
	r.runs.WithLabelValues(label).Inc()
	r.runDuration.Observe(d.Seconds())
}

// ObserveSinkError records a failed delivery to the named sink.
func (r *Recorder) ObserveSinkError(sink string) {
	r.sinkErrors.WithLabelValues(sink).Inc()
}

// Gatherer returns the registry holding the metrics.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.gatherer
}

// WriteTextfile writes all metrics to path in the text exposition format,
// e.g. for the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
