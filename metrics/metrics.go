package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters for the packaging pipeline.
type Metrics struct {
	registry      *prometheus.Registry
	jobsTotal     *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobsDeferred  *prometheus.CounterVec
	assetsShipped prometheus.Counter
}

// New creates and registers the pipeline metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vod_jobs_total",
		Help: "Jobs processed to completion, by pipeline stage",
	}, []string{"stage"})
	jobsFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vod_jobs_failed_total",
		Help: "Jobs that ended in a hard failure, by pipeline stage",
	}, []string{"stage"})
	jobsDeferred := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vod_jobs_deferred_total",
		Help: "Jobs that returned a benign not-yet-complete outcome, by pipeline stage",
	}, []string{"stage"})
	assetsShipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vod_assets_shipped_total",
		Help: "Videos fully uploaded and published as ready",
	})

	registry.MustRegister(jobsTotal, jobsFailed, jobsDeferred, assetsShipped)

	return &Metrics{
		registry:      registry,
		jobsTotal:     jobsTotal,
		jobsFailed:    jobsFailed,
		jobsDeferred:  jobsDeferred,
		assetsShipped: assetsShipped,
	}
}

// IncJobs counts one completed job for a stage.
func (m *Metrics) IncJobs(stage string) {
	m.jobsTotal.WithLabelValues(stage).Inc()
}

// IncFailed counts one hard-failed job for a stage.
func (m *Metrics) IncFailed(stage string) {
	m.jobsFailed.WithLabelValues(stage).Inc()
}

// IncDeferred counts one benign fan-in "not complete yet" outcome for a stage.
func (m *Metrics) IncDeferred(stage string) {
	m.jobsDeferred.WithLabelValues(stage).Inc()
}

// IncAssetsShipped counts one fully published video.
func (m *Metrics) IncAssetsShipped() {
	m.assetsShipped.Inc()
}

// Handler returns an http.Handler that serves the pipeline metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
