package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels shared by the webhook and charge counters.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultInvalid   = "invalid"
	ResultFailed    = "failed"
	ResultSucceeded = "succeeded"
	ResultSynced    = "synced"
	ResultError     = "error"
)

// Metrics exposes the engine counters on the default prometheus registry.
type Metrics struct {
	WebhooksReceived *prometheus.CounterVec
	SyncRuns         prometheus.Counter
	SyncItems        *prometheus.CounterVec
	Charges          *prometheus.CounterVec
	WebhookDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		WebhooksReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wonpay",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook deliveries by resource and outcome.",
		}, []string{"resource", "result"}),
		SyncRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "wonpay",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Reconciliation sync runs.",
		}),
		SyncItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wonpay",
			Subsystem: "sync",
			Name:      "items_total",
			Help:      "Items processed during reconciliation by resource and outcome.",
		}, []string{"resource", "result"}),
		Charges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wonpay",
			Subsystem: "billing",
			Name:      "charges_total",
			Help:      "Recurring and proration charges by outcome.",
		}, []string{"result"}),
		WebhookDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wonpay",
			Subsystem: "webhook",
			Name:      "duration_seconds",
			Help:      "Webhook processing latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource"}),
	}
}

func (m *Metrics) IncWebhook(resource, result string) {
	if m == nil {
		return
	}
	m.WebhooksReceived.WithLabelValues(resource, result).Inc()
}

func (m *Metrics) IncSyncItem(resource, result string) {
	if m == nil {
		return
	}
	m.SyncItems.WithLabelValues(resource, result).Inc()
}

func (m *Metrics) IncSyncRun() {
	if m == nil {
		return
	}
	m.SyncRuns.Inc()
}

func (m *Metrics) IncCharge(result string) {
	if m == nil {
		return
	}
	m.Charges.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveWebhookDuration(resource string, seconds float64) {
	if m == nil {
		return
	}
	m.WebhookDuration.WithLabelValues(resource).Observe(seconds)
}
