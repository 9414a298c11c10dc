package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentAmountTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by gateway and canonical status.",
		},
		[]string{"gateway", "status"},
	)

	paymentAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_amount_tiyin_total",
			Help: "Total monetary value of confirmed payments in tiyin.",
		},
		[]string{"gateway"},
	)
)

func IncPayment(gateway, status string) {
	paymentsTotal.WithLabelValues(norm(gateway), norm(status)).Inc()
}

func AddPaymentAmount(gateway string, amountTiyin int64) {
	paymentAmountTotal.WithLabelValues(norm(gateway)).Add(float64(amountTiyin))
}
