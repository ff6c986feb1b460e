// Package metrics exports run statistics in the Prometheus text format
// for the node exporter textfile collector.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the collectors of one process on a private registry.
type Recorder struct {
	registry      *prometheus.Registry
	events        *prometheus.CounterVec
	runDuration   prometheus.Gauge
	commitSuccess prometheus.Gauge
	lastRun       prometheus.Gauge
	fetchDuration *prometheus.GaugeVec
}

// NewRecorder creates and registers the collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "changewatch_events_total",
				Help: "Change events produced, labeled by kind and severity.",
			},
			[]string{"kind", "severity"},
		),
		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "changewatch_run_duration_seconds",
				Help: "Wall-clock duration of the last run.",
			},
		),
		commitSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "changewatch_commit_success",
				Help: "1 when the last run committed its state, 0 otherwise.",
			},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "changewatch_last_run_timestamp_seconds",
				Help: "Unix time at which the last run finished.",
			},
		),
		fetchDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "changewatch_target_fetch_duration_seconds",
				Help: "Fetch duration of each target in the last run.",
			},
			[]string{"target"},
		),
	}
	r.registry.MustRegister(r.events, r.runDuration, r.commitSuccess, r.lastRun, r.fetchDuration)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveFetch records how long fetching a target took.
func (r *Recorder) ObserveFetch(targetID string, d time.Duration) {
	r.fetchDuration.WithLabelValues(targetID).Set(d.Seconds())
}

// ObserveRun records the outcome of a finished run.
func (r *Recorder) ObserveRun(result *models.RunResult) {
	for _, ev := range result.Events {
		r.events.WithLabelValues(string(ev.Kind), string(ev.Severity)).Inc()
	}
	r.runDuration.Set(result.Duration().Seconds())
	if result.Committed {
		r.commitSuccess.Set(1)
	} else {
		r.commitSuccess.Set(0)
	}
	r.lastRun.Set(float64(result.FinishedAt.Unix()))
}

// WriteTextfile atomically writes all metrics to path, creating its
// directory when missing.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
