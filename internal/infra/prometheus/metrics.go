package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposed by the access engine. Registered on the default registry
// served by the /metrics endpoint.
var (
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatekey",
		Name:      "access_attempts_total",
		Help:      "Access attempts by outcome and denial reason.",
	}, []string{"outcome", "reason"})

	GateWebhookDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gatekey",
		Name:      "gate_webhook_duration_seconds",
		Help:      "Latency of gate-webhook trigger attempts.",
		Buckets:   prometheus.DefBuckets,
	})

	GateWebhookFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatekey",
		Name:      "gate_webhook_failures_total",
		Help:      "Gate-webhook triggers that exhausted all retries.",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatekey",
		Name:      "notifications_total",
		Help:      "Notification deliveries by provider type and result.",
	}, []string{"provider_type", "result"})

	SweepTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatekey",
		Name:      "sweep_status_transitions_total",
		Help:      "Links flipped to inactive by the periodic status sweep.",
	})
)
