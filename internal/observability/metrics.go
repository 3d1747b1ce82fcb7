package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "hsn"

	outcomeClassified = "classified"
	providerNone      = "none"
)

// PredictionLabels are the dimensions of one resolved prediction
type PredictionLabels struct {
	Channel  string
	Provider string
	HSNCode  string
}

// Metrics exports prediction counters to Prometheus and keeps process totals
// for the status endpoint
type Metrics struct {
	registry    *prometheus.Registry
	predictions *prometheus.CounterVec
	latency     *prometheus.HistogramVec

	mu         sync.Mutex
	startedAt  time.Time
	total      int64
	sentinels  map[string]int64
	byChannel  map[string]int64
	byProvider map[string]int64
	latencySum time.Duration
}

// MetricsSnapshot is a point-in-time copy of the process totals
type MetricsSnapshot struct {
	Uptime           string           `json:"uptime"`
	Predictions      int64            `json:"predictions"`
	ByChannel        map[string]int64 `json:"by_channel"`
	ByProvider       map[string]int64 `json:"by_provider"`
	Outcomes         map[string]int64 `json:"outcomes"`
	AverageLatencyMs float64          `json:"average_latency_ms"`
}

// NewMetrics creates a collector on its own registry. sentinelCodes are
// counted individually, every other code counts as "classified".
func NewMetrics(sentinelCodes ...string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "predictions_total",
			Help:      "Resolved predictions by channel, answering provider and outcome.",
		}, []string{"channel", "provider", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time to resolve one prediction across the provider chain.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"channel", "provider"}),
		startedAt:  time.Now(),
		sentinels:  make(map[string]int64),
		byChannel:  make(map[string]int64),
		byProvider: make(map[string]int64),
	}
	for _, code := range sentinelCodes {
		m.sentinels[code] = 0
	}

	m.registry.MustRegister(
		m.predictions,
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one prediction
func (m *Metrics) Observe(labels PredictionLabels, latency time.Duration) {
	provider := labels.Provider
	if provider == "" {
		provider = providerNone
	}

	m.mu.Lock()
	m.total++
	m.latencySum += latency
	m.byChannel[labels.Channel]++
	m.byProvider[provider]++

	outcome := outcomeClassified
	if _, ok := m.sentinels[labels.HSNCode]; ok {
		m.sentinels[labels.HSNCode]++
		outcome = labels.HSNCode
	}
	m.mu.Unlock()

	m.predictions.WithLabelValues(labels.Channel, provider, outcome).Inc()
	m.latency.WithLabelValues(labels.Channel, provider).Observe(latency.Seconds())
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot copies the current process totals
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Uptime:      time.Since(m.startedAt).Round(time.Second).String(),
		Predictions: m.total,
		ByChannel:   copyCounts(m.byChannel),
		ByProvider:  copyCounts(m.byProvider),
		Outcomes:    copyCounts(m.sentinels),
	}

	var sentinelTotal int64
	for _, n := range m.sentinels {
		sentinelTotal += n
	}
	snap.Outcomes[outcomeClassified] = m.total - sentinelTotal

	if m.total > 0 {
		snap.AverageLatencyMs = float64(m.latencySum.Milliseconds()) / float64(m.total)
	}
	return snap
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
