package followupaction

import "followup-workers/internal/models"

// Actions accepted by the worker.
const (
	ActionComplete       = "complete"
	ActionSnooze         = "snooze"
	ActionMarkNoResponse = "mark_no_response"
	ActionSendReminder   = "send_reminder"
)

type Input struct {
	FollowUpID string `json:"followUpId"`
	UserID     string `json:"userId"`
	Action     string `json:"action"`

	// Action-specific fields.
	Reason      string `json:"reason,omitempty"`      // complete
	SnoozeUntil string `json:"snoozeUntil,omitempty"` // snooze, RFC3339
}

type Output struct {
	Success      bool             `json:"success"`
	Action       string           `json:"action"`
	FollowUp     *models.FollowUp `json:"followUp,omitempty"`
	ReminderSent bool             `json:"reminderSent,omitempty"`
}
