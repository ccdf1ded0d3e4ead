package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Sessions          prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	MessagesTruncated prometheus.Counter
	ProviderErrors    *prometheus.CounterVec
	CompletionLatency *prometheus.HistogramVec
	ArchiveEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Sessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of sessions held in the history store.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		MessagesTruncated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_truncated_total",
			Help:      "Messages dropped from the front of a session to respect the length cap.",
		}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Completion provider errors by provider and code.",
		}, []string{"provider", "code"}),
		CompletionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Latency of completion provider calls in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}, []string{"provider", "outcome"}),
		ArchiveEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_events_total",
			Help:      "Evicted-session archive writes by result.",
		}, []string{"result"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) ObserveCompletion(provider, outcome string, d time.Duration) {
	m.CompletionLatency.WithLabelValues(provider, outcome).Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
