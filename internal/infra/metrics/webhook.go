package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookRequestsTotal,
		webhookLatencyMs,
	)
}

var (
	webhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Inbound gateway callbacks by gateway, vendor method/action and result.",
		},
		[]string{"gateway", "method", "result"},
	)

	webhookLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_latency_ms",
			Help:    "Webhook handling latency distribution in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"gateway"},
	)
)

func ObserveWebhook(gateway, method, result string, latencyMs float64) {
	webhookRequestsTotal.WithLabelValues(norm(gateway), norm(method), norm(result)).Inc()
	webhookLatencyMs.WithLabelValues(norm(gateway)).Observe(latencyMs)
}
