package createnotification

import "followup-workers/internal/models"

type Input struct {
	UserID    string                 `json:"userId"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	RelatedID string                 `json:"relatedId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type Output struct {
	Success        bool                 `json:"success"`
	NotificationID string               `json:"notificationId"`
	Notification   *models.Notification `json:"notification,omitempty"`
}
