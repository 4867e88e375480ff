// internal/models/todo.go
package models

import "time"

// Todo statuses
const (
	TodoStatusPending    = "pending"
	TodoStatusInProgress = "in_progress"
	TodoStatusCompleted  = "completed"
	TodoStatusDismissed  = "dismissed"
	TodoStatusExpired    = "expired"
)

// Todo priorities
const (
	TodoPriorityLow    = "low"
	TodoPriorityMedium = "medium"
	TodoPriorityHigh   = "high"
)

// Todo is an actionable work item derived from a notification or assigned
// directly. completed_at/dismissed_at are stamped iff the matching status is set.
type Todo struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"userId"`
	SourceNotificationID *string    `json:"sourceNotificationId,omitempty"`
	Title                string     `json:"title"`
	Status               string     `json:"status"`
	Priority             string     `json:"priority"`
	DueDate              *time.Time `json:"dueDate,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	DismissedAt          *time.Time `json:"dismissedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// IsValidTodoStatus reports whether s is a member of the todo status set.
func IsValidTodoStatus(s string) bool {
	switch s {
	case TodoStatusPending, TodoStatusInProgress, TodoStatusCompleted,
		TodoStatusDismissed, TodoStatusExpired:
		return true
	}
	return false
}
