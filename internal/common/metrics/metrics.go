// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FollowUpsEscalated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "followups_escalated_total",
			Help: "Total number of follow-ups escalated by the sweep",
		},
	)

	EscalationDigestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "escalation_digests_total",
			Help: "Total number of manager digest notifications created",
		},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notifications created by type",
		},
		[]string{"type"},
	)

	TodosCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todos_created_total",
			Help: "Total number of todos synthesized from notifications",
		},
		[]string{"notification_type"},
	)

	EmailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_queue_processed_total",
			Help: "Total number of queue rows processed by outcome",
		},
		[]string{"outcome"},
	)

	QueueBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "email_queue_batch_duration_seconds",
			Help: "Duration of one email queue processing batch in seconds",
		},
	)
)
