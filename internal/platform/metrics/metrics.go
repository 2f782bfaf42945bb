package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the ingest orchestrator.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	ingestsStartedTotal prometheus.Counter
	ingestsStoppedTotal prometheus.Counter
	jobsStartedTotal    prometheus.Counter
	jobFailuresTotal    prometheus.Counter
	activeStreams       prometheus.Gauge
	viewers             prometheus.Gauge
}

// New creates and registers Prometheus metrics for the orchestrator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexstream_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexstream_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	ingestsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexstream_ingests_started_total",
		Help: "Total number of accepted publish events",
	})
	ingestsStoppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexstream_ingests_stopped_total",
		Help: "Total number of publish-done events",
	})
	jobsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexstream_transcode_jobs_started_total",
		Help: "Total number of transcode and thumbnail jobs started",
	})
	jobFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexstream_transcode_job_failures_total",
		Help: "Total number of jobs that failed to start",
	})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nexstream_active_streams",
		Help: "Number of currently live ingest sessions",
	})
	viewers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nexstream_viewers",
		Help: "Sum of viewer counts across all live sessions",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		ingestsStartedTotal,
		ingestsStoppedTotal,
		jobsStartedTotal,
		jobFailuresTotal,
		activeStreams,
		viewers,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		ingestsStartedTotal: ingestsStartedTotal,
		ingestsStoppedTotal: ingestsStoppedTotal,
		jobsStartedTotal:    jobsStartedTotal,
		jobFailuresTotal:    jobFailuresTotal,
		activeStreams:       activeStreams,
		viewers:             viewers,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncIngestsStarted increments the accepted-publish counter.
func (m *Metrics) IncIngestsStarted() {
	m.ingestsStartedTotal.Inc()
}

// IncIngestsStopped increments the publish-done counter.
func (m *Metrics) IncIngestsStopped() {
	m.ingestsStoppedTotal.Inc()
}

// AddJobsStarted adds n to the started-jobs counter.
func (m *Metrics) AddJobsStarted(n int) {
	m.jobsStartedTotal.Add(float64(n))
}

// IncJobFailures increments the failed-job counter.
func (m *Metrics) IncJobFailures() {
	m.jobFailuresTotal.Inc()
}

// SetActiveStreams sets the live-sessions gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// SetViewers sets the total-viewers gauge.
func (m *Metrics) SetViewers(n int) {
	m.viewers.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
