package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shop"

// Webhook outcomes.
const (
	WebhookAccepted     = "accepted"
	WebhookNoop         = "noop"
	WebhookBadSignature = "bad_signature"
	WebhookUnknown      = "unknown_invoice"
	WebhookMalformed    = "malformed"
	WebhookFailed       = "error"
	ResultOK            = "ok"
	ResultRejected      = "rejected"
	ResultFailed        = "error"
)

// Metrics groups the collectors for the money path. A nil *Metrics is a no-op so
// components can be built without a registry in tests.
type Metrics struct {
	ordersCreated   *prometheus.CounterVec
	invoices        *prometheus.CounterVec
	gatewayDuration prometheus.Histogram
	webhooks        *prometheus.CounterVec
	grants          prometheus.Counter
	notifications   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total",
			Help: "Order creation attempts by result.",
		}, []string{"result"}),
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "invoices_provisioned_total",
			Help: "Invoice provisioning attempts by result.",
		}, []string{"result"}),
		gatewayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "gateway_request_duration_seconds",
			Help:    "Latency of outbound payment gateway calls.",
			Buckets: prometheus.DefBuckets,
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "webhooks_total",
			Help: "Payment webhook deliveries by outcome.",
		}, []string{"outcome"}),
		grants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "grants_total",
			Help: "Purchased product grants created.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Notification dispatches by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.ordersCreated, m.invoices, m.gatewayDuration, m.webhooks, m.grants, m.notifications)
	return m
}

func (m *Metrics) OrderCreated(result string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(result).Inc()
}

func (m *Metrics) InvoiceProvisioned(result string) {
	if m == nil {
		return
	}
	m.invoices.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveGateway(start time.Time) {
	if m == nil {
		return
	}
	m.gatewayDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Granted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.grants.Add(float64(n))
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}
