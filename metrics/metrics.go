package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry é o registry do gateway (não o default global), o que mantém os
// testes isolados de coletores de outras libs.
var Registry = prometheus.NewRegistry()

var (
	// RateLimitDecisions conta decisões por camada (window|burst) e resultado.
	// A chave do cliente fica de fora dos labels de propósito (cardinalidade).
	RateLimitDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_ratelimit_decisions_total",
		Help: "Rate limit decisions grouped by limiter and outcome",
	}, []string{"limiter", "decision"})

	SecurityRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_security_rejections_total",
		Help: "Requests rejected by the content security filter",
	}, []string{"reason"})

	SuspiciousTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_suspicious_tracked_addresses",
		Help: "Client addresses currently held by the suspicious-IP tracker",
	})

	DevicesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_devices_issued_total",
		Help: "Device identities minted for clients without a valid cookie",
	})

	UploadRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upload_rejections_total",
		Help: "Image uploads rejected by the upload validator",
	}, []string{"code"})

	UploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_upload_bytes",
		Help:    "Size of accepted image uploads",
		Buckets: []float64{10 << 10, 100 << 10, 1 << 20, 5 << 20, 10 << 20},
	})

	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_requests_total",
		Help: "Requests forwarded to the backend grouped by route and response code",
	}, []string{"route", "code"})

	UpstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_upstream_duration_seconds",
		Help:    "Backend round trip time until response headers",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"route"})

	JanitorSwept = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_janitor_swept_total",
		Help: "Stale in-memory records removed by the janitor",
	}, []string{"store"})
)

func init() {
	Registry.MustRegister(
		RateLimitDecisions,
		SecurityRejections,
		SuspiciousTracked,
		DevicesIssued,
		UploadRejections,
		UploadBytes,
		UpstreamRequests,
		UpstreamDuration,
		JanitorSwept,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler expõe o Registry no formato de texto do Prometheus.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// CodeClass reduz um status HTTP para "2xx", "4xx" etc.
func CodeClass(status int) string {
	switch {
	case status <= 0:
		return "error"
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
