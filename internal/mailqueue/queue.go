// internal/mailqueue/queue.go
package mailqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"followup-workers/internal/common/logger"
	"followup-workers/internal/models"

	"github.com/google/uuid"
)

// Transport delivers one email and returns a provider message id.
type Transport interface {
	Send(ctx context.Context, to, subject, htmlBody string) (string, error)
}

// Config holds queue processing settings.
type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
	SendTimeout time.Duration
}

// DefaultConfig matches the production settings: 5 attempts, 5 minute backoff
// base, 10 second transport timeout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: models.MaxEmailAttempts,
		BackoffBase: 5 * time.Minute,
		SendTimeout: 10 * time.Second,
	}
}

// Queue is the durable email outbox. Rows are created by the notification
// dispatcher and the reminder path, and mutated exclusively by ProcessQueue.
type Queue struct {
	db        *sql.DB
	transport Transport
	logger    logger.Logger
	config    Config

	// Now is the clock; swapped in tests.
	Now func() time.Time
}

func New(db *sql.DB, transport Transport, log logger.Logger, config Config) *Queue {
	if config.MaxAttempts == 0 {
		config = DefaultConfig()
	}
	return &Queue{
		db:        db,
		transport: transport,
		logger:    log,
		config:    config,
		Now:       time.Now,
	}
}

// Enqueue inserts a pending row. ScheduledFor defaults to now so the next
// sweep picks it up.
func (q *Queue) Enqueue(ctx context.Context, item *models.EmailQueueItem) (*models.EmailQueueItem, error) {
	now := q.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.ScheduledFor.IsZero() {
		item.ScheduledFor = now
	}
	item.Status = models.EmailStatusPending
	item.CreatedAt = now

	query := `
		INSERT INTO email_queue
			(id, notification_id, user_id, to_address, subject, html_body, status, scheduled_for, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)`

	_, err := q.db.ExecContext(ctx, query,
		item.ID, item.NotificationID, item.UserID, item.ToAddress,
		item.Subject, item.HTMLBody, item.Status, item.ScheduledFor, item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue email: %w", err)
	}
	return item, nil
}

// Stats holds aggregate queue counts by status, for operational monitoring.
type Stats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// GetEmailStats returns counts by status. Read-only, side-effect free.
func (q *Queue) GetEmailStats(ctx context.Context) (*Stats, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM email_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("queue stats scan: %w", err)
		}
		switch status {
		case models.EmailStatusPending:
			stats.Pending = count
		case models.EmailStatusSent:
			stats.Sent = count
		case models.EmailStatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}
