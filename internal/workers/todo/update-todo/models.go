package updatetodo

import "followup-workers/internal/models"

type Input struct {
	TodoID string `json:"todoId"`
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type Output struct {
	Success bool         `json:"success"`
	Todo    *models.Todo `json:"todo,omitempty"`
}
