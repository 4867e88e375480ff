// internal/models/notification.go
package models

import "time"

// Notification types (closed set; unknown types are rejected at creation
// and ignored by todo automation)
const (
	NotificationTypeFollowUpReminder = "follow_up_reminder"
	NotificationTypeReviewRequested  = "review_requested"
	NotificationTypeEscalation       = "escalation"
	NotificationTypeEscalationDigest = "escalation_digest"
)

// KnownNotificationTypes lists every type the dispatcher accepts.
var KnownNotificationTypes = []string{
	NotificationTypeFollowUpReminder,
	NotificationTypeReviewRequested,
	NotificationTypeEscalation,
	NotificationTypeEscalationDigest,
}

// Notification is a durable, addressed message about a domain event.
// Immutable once created except for the Read flag; exactly one recipient.
type Notification struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	RelatedID *string                `json:"relatedId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"createdAt"`
}

// IsKnownNotificationType reports whether t belongs to the closed type set.
func IsKnownNotificationType(t string) bool {
	for _, k := range KnownNotificationTypes {
		if k == t {
			return true
		}
	}
	return false
}
