package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's instrumentation on a private registry so tests
// never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ChatStreamsActive prometheus.Gauge
	ChatFramesTotal   prometheus.Counter
	RealtimeMints     *prometheus.CounterVec
	TranscribeSeconds prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "englify_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "englify_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ChatStreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "englify_chat_streams_active",
			Help: "Chat completions currently streaming.",
		}),
		ChatFramesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "englify_chat_frames_total",
			Help: "Stream frames written to chat clients.",
		}),
		RealtimeMints: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "englify_realtime_credentials_total",
			Help: "Ephemeral realtime credential mints by outcome.",
		}, []string{"outcome"}),
		TranscribeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "englify_transcribe_duration_seconds",
			Help:    "Transcription upstream latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(route, httpStatusClass(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func httpStatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
