package prometrics

import (
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics maps the service's metric keys onto registered instruments.
type Metrics struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

// NewMetrics registers every instrument the service emits.
func NewMetrics(r Registry) *Metrics {
	return &Metrics{
		counters: map[observability.MetricKey]observability.Counter{
			observability.MUsecaseRequests: r.Counter(string(observability.MUsecaseRequests),
				"Use case executions by outcome.", "use_case", "outcome"),
			observability.MHTTPRequests: r.Counter(string(observability.MHTTPRequests),
				"HTTP requests by route, method and status.", "route", "method", "status"),
			observability.MExternalRequests: r.Counter(string(observability.MExternalRequests),
				"Calls to downstream peers by outcome.", "peer", "endpoint", "outcome"),
			observability.MRealtimeConnections: r.Counter(string(observability.MRealtimeConnections),
				"Realtime connection lifecycle events.", "event"),
		},
		histograms: map[observability.MetricKey]observability.Histogram{
			observability.MUsecaseDuration: r.Histogram(string(observability.MUsecaseDuration),
				"Use case latency.", prometheus.DefBuckets, "use_case"),
			observability.MHTTPRequestDuration: r.Histogram(string(observability.MHTTPRequestDuration),
				"HTTP request latency.", prometheus.DefBuckets, "route", "method", "status"),
			observability.MExternalRequestDuration: r.Histogram(string(observability.MExternalRequestDuration),
				"Downstream call latency.", prometheus.DefBuckets, "peer", "endpoint"),
		},
	}
}

func (m *Metrics) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := m.counters[name]; ok {
		return c
	}
	return observability.NopCounter()
}

func (m *Metrics) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[name]; ok {
		return h
	}
	return observability.NopHistogram()
}
