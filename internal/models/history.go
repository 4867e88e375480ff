// internal/models/history.go
package models

import (
	"fmt"
	"time"
)

// Follow-up history actions
const (
	HistoryActionReminderSent = "reminder_sent"
	HistoryActionEscalated    = "escalated"
)

// FollowUpHistory is an append-only log entry recording a reminder or
// escalation action, keyed for day-granularity deduplication.
type FollowUpHistory struct {
	ID             string    `json:"id"`
	FollowUpID     string    `json:"followUpId"`
	Action         string    `json:"action"`
	IdempotencyKey string    `json:"idempotencyKey"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HistoryIdempotencyKey builds the dedupe key for one action on one follow-up
// on one calendar day (UTC).
func HistoryIdempotencyKey(followUpID, action string, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", followUpID, day.UTC().Format("2006-01-02"), action)
}
