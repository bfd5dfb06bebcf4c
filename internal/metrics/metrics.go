package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)

	CheckoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_total",
			Help: "Checkout attempts by outcome (created, unavailable, rejected, error)",
		},
		[]string{"outcome"},
	)

	ReservationOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_reservation_ops_total",
			Help: "Ledger operations by op (reserve, release, commit) and outcome",
		},
		[]string{"op", "outcome"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Processor webhook events by type and outcome (applied, duplicate, noop, invalid, error)",
		},
		[]string{"type", "outcome"},
	)

	SweptOrders = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_sweeper_canceled_orders_total",
			Help: "Pending orders canceled by the reservation expiry sweeper",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
