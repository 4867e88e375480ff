package processqueue

import "followup-workers/internal/mailqueue"

type Input struct {
	// Limit overrides the configured batch limit when positive.
	Limit int `json:"limit,omitempty"`
}

type Output struct {
	Success   bool             `json:"success"`
	Attempted int              `json:"attempted"`
	Sent      int              `json:"sent"`
	Failed    int              `json:"failed"`
	Stats     *mailqueue.Stats `json:"stats,omitempty"`
}
