package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the acquisition service.
type Metrics struct {
	registry                *prometheus.Registry
	requestsTotal           prometheus.Counter
	errorsTotal             prometheus.Counter
	downloadsStartedTotal   prometheus.Counter
	downloadsCompletedTotal prometheus.Counter
	downloadsFailedTotal    prometheus.Counter
	strategyAttemptsTotal   *prometheus.CounterVec
	strategyFailuresTotal   *prometheus.CounterVec
	activeDownloads         prometheus.Gauge
}

// New creates and registers the service metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acquire_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acquire_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	downloadsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acquire_downloads_started_total",
		Help: "Total number of accepted acquisition requests",
	})
	downloadsCompletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acquire_downloads_completed_total",
		Help: "Total number of acquisitions that reached completed",
	})
	downloadsFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acquire_downloads_failed_total",
		Help: "Total number of acquisitions that reached error",
	})
	strategyAttemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "acquire_strategy_attempts_total",
		Help: "Strategy attempts, including retries",
	}, []string{"strategy"})
	strategyFailuresTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "acquire_strategy_failures_total",
		Help: "Strategies exhausted without success",
	}, []string{"strategy"})
	activeDownloads := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "acquire_active_downloads",
		Help: "Number of acquisitions currently in flight",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		downloadsStartedTotal,
		downloadsCompletedTotal,
		downloadsFailedTotal,
		strategyAttemptsTotal,
		strategyFailuresTotal,
		activeDownloads,
	)

	return &Metrics{
		registry:                registry,
		requestsTotal:           requestsTotal,
		errorsTotal:             errorsTotal,
		downloadsStartedTotal:   downloadsStartedTotal,
		downloadsCompletedTotal: downloadsCompletedTotal,
		downloadsFailedTotal:    downloadsFailedTotal,
		strategyAttemptsTotal:   strategyAttemptsTotal,
		strategyFailuresTotal:   strategyFailuresTotal,
		activeDownloads:         activeDownloads,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncDownloadsStarted increments the accepted-acquisitions counter.
func (m *Metrics) IncDownloadsStarted() {
	m.downloadsStartedTotal.Inc()
}

// IncDownloadsCompleted increments the completed-acquisitions counter.
func (m *Metrics) IncDownloadsCompleted() {
	m.downloadsCompletedTotal.Inc()
}

// IncDownloadsFailed increments the failed-acquisitions counter.
func (m *Metrics) IncDownloadsFailed() {
	m.downloadsFailedTotal.Inc()
}

// IncStrategyAttempts counts one attempt of the named strategy.
func (m *Metrics) IncStrategyAttempts(strategy string) {
	m.strategyAttemptsTotal.WithLabelValues(strategy).Inc()
}

// IncStrategyFailures counts the named strategy being exhausted.
func (m *Metrics) IncStrategyFailures(strategy string) {
	m.strategyFailuresTotal.WithLabelValues(strategy).Inc()
}

// SetActiveDownloads sets the in-flight acquisitions gauge.
func (m *Metrics) SetActiveDownloads(n int) {
	m.activeDownloads.Set(float64(n))
}

// Handler returns an http.Handler that serves the metrics. updateGauges is
// called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
