// Package metrics records build statistics in a Prometheus registry.
//
// The registry is private to the Recorder so repeated builds in one
// process (tests, the preview server) never collide on registration. The
// CLI exports it in the text exposition format after a command, for the
// node_exporter textfile collector:
//
//	rec := metrics.New()
//	builder := build.New(cfg, build.Options{Metrics: rec})
//	_, err := builder.Build(ctx)
//	rec.WriteTextfile("/var/lib/node_exporter/wwwbuild.prom")
//
// Metrics collected:
//   - wwwbuild_task_duration_seconds: histogram of task durations by task
//   - wwwbuild_task_runs_total: counter of task runs by task and status
//   - wwwbuild_files_total: counter of files by task and result (written, skipped)
//   - wwwbuild_build_duration_seconds: duration of the last composite build
//   - wwwbuild_build_success: 1 if the last composite build succeeded
//   - wwwbuild_build_last_timestamp_seconds: completion time of the last build
//
// All methods are safe on a nil *Recorder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the Recorder.
type Config struct {
	// Namespace is the metrics namespace (default: "wwwbuild").
	Namespace string

	// Buckets are the histogram buckets for task duration.
	Buckets []float64

	// Registry is the registry metrics are registered with. Default: a
	// fresh registry owned by the Recorder.
	Registry *prometheus.Registry
}

// Option configures the Recorder.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Recorder holds the build metrics.
type Recorder struct {
	registry      *prometheus.Registry
	taskDuration  *prometheus.HistogramVec
	taskRuns      *prometheus.CounterVec
	files         *prometheus.CounterVec
	buildDuration prometheus.Gauge
	buildSuccess  prometheus.Gauge
	buildLast     prometheus.Gauge
}

// New creates a Recorder.
func New(opts ...Option) *Recorder {
	config := Config{
		Namespace: "wwwbuild",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	factory := promauto.With(config.Registry)

	return &Recorder{
		registry: config.Registry,

		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "task_duration_seconds",
			Help:      "Task duration in seconds",
			Buckets:   config.Buckets,
		}, []string{"task"}),

		taskRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "task_runs_total",
			Help:      "Total number of task runs",
		}, []string{"task", "status"}),

		files: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "files_total",
			Help:      "Total number of files handled by tasks",
		}, []string{"task", "result"}),

		buildDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of the last composite build in seconds",
		}),

		buildSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "build_success",
			Help:      "Whether the last composite build succeeded",
		}),

		buildLast: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "build_last_timestamp_seconds",
			Help:      "Unix time the last composite build finished",
		}),
	}
}

// ObserveTask records one task run.
func (r *Recorder) ObserveTask(task string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.taskDuration.WithLabelValues(task).Observe(d.Seconds())
	r.taskRuns.WithLabelValues(task, status(err)).Inc()
}

// AddFiles adds n files with the given result ("written" or "skipped").
func (r *Recorder) AddFiles(task, result string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.files.WithLabelValues(task, result).Add(float64(n))
}

// BuildCompleted records the outcome of a composite build.
func (r *Recorder) BuildCompleted(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.buildDuration.Set(d.Seconds())
	if err != nil {
		r.buildSuccess.Set(0)
	} else {
		r.buildSuccess.Set(1)
	}
	r.buildLast.SetToCurrentTime()
}

// Gatherer returns the registry for exposition.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Gatherer())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
