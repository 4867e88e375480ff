package todoautomation

import "followup-workers/internal/models"

type Input struct {
	NotificationID string                 `json:"notificationId"`
	UserID         string                 `json:"userId"`
	Type           string                 `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	RelatedID      string                 `json:"relatedId,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

type Output struct {
	Success bool         `json:"success"`
	Created bool         `json:"created"`
	Todo    *models.Todo `json:"todo,omitempty"`
}
