package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for pipeline sessions, scene
// transitions and the status API. A nil *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	sessionsTotal   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	stageBytesTotal *prometheus.CounterVec
	throughput      prometheus.Gauge
	confirmPrompts  prometheus.Counter
	confirmBytes    prometheus.Gauge
	transitions     *prometheus.CounterVec
	transitionTime  prometheus.Histogram
	loadersPending  prometheus.Gauge
	requestsTotal   prometheus.Counter
	errorsTotal     prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	sessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assetflow_sessions_total",
		Help: "Pipeline sessions finished, by result",
	}, []string{"result"})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assetflow_stage_duration_seconds",
		Help:    "Wall time spent in each pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"stage"})
	stageBytesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assetflow_stage_bytes_total",
		Help: "Bytes moved by each transfer stage",
	}, []string{"stage"})
	throughput := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assetflow_throughput_bytes_per_second",
		Help: "Most recent download throughput estimate",
	})
	confirmPrompts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assetflow_confirm_prompts_total",
		Help: "Download confirmations requested on metered networks",
	})
	confirmBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assetflow_confirm_estimated_bytes",
		Help: "Estimated size of the most recent confirmation prompt",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assetflow_transitions_total",
		Help: "Scene transitions finished, by result",
	}, []string{"result"})
	transitionTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "assetflow_transition_duration_seconds",
		Help:    "Wall time of scene transitions",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	loadersPending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assetflow_scene_loaders_pending",
		Help: "Loaders a transition is still waiting on",
	})
	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assetflow_api_requests_total",
		Help: "Total number of status API requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assetflow_api_errors_total",
		Help: "Status API responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		sessionsTotal,
		stageDuration,
		stageBytesTotal,
		throughput,
		confirmPrompts,
		confirmBytes,
		transitions,
		transitionTime,
		loadersPending,
		requestsTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:        registry,
		sessionsTotal:   sessionsTotal,
		stageDuration:   stageDuration,
		stageBytesTotal: stageBytesTotal,
		throughput:      throughput,
		confirmPrompts:  confirmPrompts,
		confirmBytes:    confirmBytes,
		transitions:     transitions,
		transitionTime:  transitionTime,
		loadersPending:  loadersPending,
		requestsTotal:   requestsTotal,
		errorsTotal:     errorsTotal,
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SessionFinished counts a finished pipeline session.
func (m *Metrics) SessionFinished(result string, _ time.Duration) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(result).Inc()
}

// StageFinished observes a stage's duration and transferred bytes.
func (m *Metrics) StageFinished(name string, _ string, duration time.Duration, bytes uint64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(name).Observe(duration.Seconds())
	if bytes > 0 {
		m.stageBytesTotal.WithLabelValues(name).Add(float64(bytes))
	}
}

// Throughput sets the current rate gauge.
func (m *Metrics) Throughput(bytesPerSecond float64) {
	if m == nil {
		return
	}
	m.throughput.Set(bytesPerSecond)
}

// ConfirmPrompted counts a confirmation prompt.
func (m *Metrics) ConfirmPrompted(estimatedBytes uint64) {
	if m == nil {
		return
	}
	m.confirmPrompts.Inc()
	m.confirmBytes.Set(float64(estimatedBytes))
}

// TransitionFinished counts a scene transition.
func (m *Metrics) TransitionFinished(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(result).Inc()
	m.transitionTime.Observe(duration.Seconds())
}

// LoadersPending sets the pending loader gauge.
func (m *Metrics) LoadersPending(count int) {
	if m == nil {
		return
	}
	m.loadersPending.Set(float64(count))
}

// IncRequests increments the API request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the API error counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves the registry.
// refresh is called before each scrape to update sampled gauges.
func (m *Metrics) Handler(refresh func()) http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refresh != nil {
			refresh()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
