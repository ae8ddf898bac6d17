// Package metrics records bot run statistics in Prometheus form.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the run metrics on a private registry. A nil *Recorder
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	steps          *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	exceptionSteps *prometheus.CounterVec
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	screenshots    prometheus.Counter
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botrunner_steps_total",
			Help: "Steps executed, by action and final status.",
		}, []string{"action", "status"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "botrunner_step_duration_seconds",
			Help:    "Step execution time, by action.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"action"}),
		exceptionSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botrunner_exception_steps_total",
			Help: "Exception steps executed after a failure, by final status.",
		}, []string{"status"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botrunner_runs_total",
			Help: "Bot runs, by final status.",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "botrunner_run_duration_seconds",
			Help:    "Wall time of a bot run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		screenshots: factory.NewCounter(prometheus.CounterOpts{
			Name: "botrunner_screenshots_total",
			Help: "Screenshots written to disk.",
		}),
	}
}

// ObserveStep records one main-sequence or nested step.
func (r *Recorder) ObserveStep(action, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.steps.WithLabelValues(action, status).Inc()
	r.stepDuration.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveExceptionStep records one exception step.
func (r *Recorder) ObserveExceptionStep(status string) {
	if r == nil {
		return
	}
	r.exceptionSteps.WithLabelValues(status).Inc()
}

// ObserveRun records a finished bot.
func (r *Recorder) ObserveRun(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status).Inc()
	r.runDuration.Observe(d.Seconds())
}

// ObserveScreenshot records a saved screenshot.
func (r *Recorder) ObserveScreenshot() {
	if r == nil {
		return
	}
	r.screenshots.Inc()
}

// Handler serves the metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteToTextfile writes the metrics for the node exporter textfile
// collector.
func (r *Recorder) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
