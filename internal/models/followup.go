// internal/models/followup.go
package models

import "time"

// FollowUp statuses
const (
	FollowUpStatusPending    = "pending"
	FollowUpStatusCompleted  = "completed"
	FollowUpStatusNoResponse = "no_response"
	FollowUpStatusSnoozed    = "snoozed"
)

// MaxFollowUpSequence is the final follow-up attempt for a thread; after it,
// the only valid terminal transition besides complete is no_response.
const MaxFollowUpSequence = 3

// FollowUp is one outstanding obligation to receive a client reply by a due date.
// Rows are never deleted, only status-terminated.
type FollowUp struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	ClientID         string     `json:"clientId"`
	ClientName       string     `json:"clientName"`
	EmailSubject     string     `json:"emailSubject"`
	SequenceNumber   int        `json:"sequenceNumber"` // 1..3
	DueDate          time.Time  `json:"dueDate"`
	Status           string     `json:"status"`
	Escalated        bool       `json:"escalated"`
	EscalationDate   *time.Time `json:"escalationDate,omitempty"`
	ManagerID        *string    `json:"managerId,omitempty"`
	CompletionReason *string    `json:"completionReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// IsTerminal reports whether the follow-up can transition further.
func (f *FollowUp) IsTerminal() bool {
	return f.Status == FollowUpStatusCompleted || f.Status == FollowUpStatusNoResponse
}
