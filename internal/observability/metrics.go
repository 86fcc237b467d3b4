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
	ActiveSessions       prometheus.Gauge
	SessionEvents        *prometheus.CounterVec
	WSMessages           *prometheus.CounterVec
	UpstreamErrors       *prometheus.CounterVec
	Reconnects           *prometheus.CounterVec
	AdmissionRejections  prometheus.Counter
	FirstGreetingLatency prometheus.Histogram
	FirstAudioLatency    prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active roleplay voice sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Client WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Upstream realtime errors by code.",
		}, []string{"code"}),
		Reconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_reconnects_total",
			Help:      "Upstream reconnection attempts by outcome.",
		}, []string{"outcome"}),
		AdmissionRejections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejections_total",
			Help:      "Session creations rejected at the capacity limit.",
		}),
		FirstGreetingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_greeting_latency_ms",
			Help:      "Latency from session start to the first assistant greeting audio in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000},
		}),
		FirstAudioLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from audio commit to the first assistant audio chunk in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000},
		}),
	}
}

func (m *Metrics) ObserveFirstGreetingLatency(d time.Duration) {
	m.FirstGreetingLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
