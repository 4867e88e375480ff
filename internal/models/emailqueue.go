// internal/models/emailqueue.go
package models

import "time"

// Email queue statuses
const (
	EmailStatusPending = "pending"
	EmailStatusSent    = "sent"
	EmailStatusFailed  = "failed"
)

// MaxEmailAttempts is the delivery retry ceiling; a row that reaches it is
// marked failed and excluded from further processing.
const MaxEmailAttempts = 5

// EmailQueueItem is one unit of outbound mail, usually derived from a
// notification. Rows are mutated exclusively by the queue processor and are
// never deleted (audit trail).
type EmailQueueItem struct {
	ID             string     `json:"id"`
	NotificationID *string    `json:"notificationId,omitempty"` // nil for system mail
	UserID         string     `json:"userId"`
	ToAddress      string     `json:"toAddress"`
	Subject        string     `json:"subject"`
	HTMLBody       string     `json:"htmlBody"`
	Status         string     `json:"status"`
	ScheduledFor   time.Time  `json:"scheduledFor"`
	Attempts       int        `json:"attempts"`
	LastError      *string    `json:"lastError,omitempty"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}
