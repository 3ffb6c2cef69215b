package sql

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records SQL datasource metrics. The labels are alternating
// name/value pairs.
type Metrics interface {
	RecordHistogram(ctx context.Context, name string, value float64, labels ...string)
}

// PrometheusMetrics is a Metrics implementation backed by a prometheus
// registry. Histograms are created lazily on first observation.
type PrometheusMetrics struct {
	registry prometheus.Registerer

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
}

// Query durations are recorded in microseconds.
var queryDurationBuckets = []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000, 100000, 500000}

// NewPrometheusMetrics returns a Metrics recording into registry. A nil
// registry falls back to the default prometheus registerer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	return &PrometheusMetrics{
		registry:   registry,
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (m *PrometheusMetrics) RecordHistogram(_ context.Context, name string, value float64, labels ...string) {
	labelNames, labelValues := splitLabelPairs(labels)

	m.mu.Lock()
	histogram, ok := m.histograms[name]
	if !ok {
		histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    "sqlkit histogram for " + name,
			Buckets: queryDurationBuckets,
		}, labelNames)
		m.registry.MustRegister(histogram)
		m.histograms[name] = histogram
	}
	m.mu.Unlock()

	histogram.WithLabelValues(labelValues...).Observe(value)
}

func splitLabelPairs(labels []string) (names, values []string) {
	for i := 0; i+1 < len(labels); i += 2 {
		names = append(names, labels[i])
		values = append(values, labels[i+1])
	}

	return names, values
}
