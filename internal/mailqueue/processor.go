// internal/mailqueue/processor.go
package mailqueue

import (
	"context"
	"fmt"

	apperrors "followup-workers/internal/common/errors"
	"followup-workers/internal/common/metrics"
	"followup-workers/internal/models"
)

// BatchResult reports one ProcessQueue invocation.
type BatchResult struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// ProcessQueue attempts delivery for up to limit due pending rows, oldest
// scheduled_for first. Every row update is a single conditional statement
// guarded on status='pending', so overlapping sweeps cannot double-send: the
// losing writer's update affects zero rows. A row failure never aborts the
// batch.
func (q *Queue) ProcessQueue(ctx context.Context, limit int) (*BatchResult, error) {
	now := q.Now().UTC()
	timer := metrics.QueueBatchDuration
	defer func() { timer.Observe(q.Now().UTC().Sub(now).Seconds()) }()

	query := `
		SELECT id, notification_id, user_id, to_address, subject, html_body, attempts, scheduled_for
		FROM email_queue
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC
		LIMIT $2`

	rows, err := q.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending emails: %w", err)
	}

	var batch []models.EmailQueueItem
	for rows.Next() {
		var item models.EmailQueueItem
		if err := rows.Scan(
			&item.ID, &item.NotificationID, &item.UserID, &item.ToAddress,
			&item.Subject, &item.HTMLBody, &item.Attempts, &item.ScheduledFor,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending email: %w", err)
		}
		batch = append(batch, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending emails: %w", err)
	}

	result := &BatchResult{}
	for i := range batch {
		result.Attempted++
		if q.attemptDelivery(ctx, &batch[i]) {
			result.Sent++
			metrics.EmailsProcessed.WithLabelValues("sent").Inc()
		} else {
			result.Failed++
			metrics.EmailsProcessed.WithLabelValues("failed").Inc()
		}
	}
	return result, nil
}

// attemptDelivery sends one row and records the outcome. Returns true when
// the transport accepted the message.
func (q *Queue) attemptDelivery(ctx context.Context, item *models.EmailQueueItem) bool {
	log := q.logger.WithFields(map[string]interface{}{
		"emailId": item.ID,
		"to":      item.ToAddress,
	})

	sendCtx, cancel := context.WithTimeout(ctx, q.config.SendTimeout)
	messageID, sendErr := q.transport.Send(sendCtx, item.ToAddress, item.Subject, item.HTMLBody)
	cancel()

	if sendErr == nil {
		query := `UPDATE email_queue SET status = 'sent', sent_at = $1 WHERE id = $2 AND status = 'pending'`
		if _, err := q.db.ExecContext(ctx, query, q.Now().UTC(), item.ID); err != nil {
			log.Error("failed to mark email sent", map[string]interface{}{"error": err})
			return false
		}
		log.Info("email delivered", map[string]interface{}{"messageId": messageID})
		return true
	}

	attempts := item.Attempts + 1
	if attempts >= q.config.MaxAttempts {
		// Terminal: excluded from further processing, visible only via stats.
		query := `UPDATE email_queue SET status = 'failed', attempts = $1, last_error = $2 WHERE id = $3 AND status = 'pending'`
		if _, err := q.db.ExecContext(ctx, query, attempts, sendErr.Error(), item.ID); err != nil {
			log.Error("failed to mark email failed", map[string]interface{}{"error": err})
		}
		log.Error("email delivery failed permanently", map[string]interface{}{
			"error":     sendErr,
			"attempts":  attempts,
			"errorCode": string(apperrors.ErrCodeRetryCeilingExceeded),
		})
		return false
	}

	// Retryable: push scheduled_for out with exponential backoff so the next
	// sweep retries it.
	delay := q.config.BackoffBase * (1 << uint(item.Attempts))
	nextAttempt := q.Now().UTC().Add(delay)
	query := `UPDATE email_queue SET attempts = $1, last_error = $2, scheduled_for = $3 WHERE id = $4 AND status = 'pending'`
	if _, err := q.db.ExecContext(ctx, query, attempts, sendErr.Error(), nextAttempt, item.ID); err != nil {
		log.Error("failed to record email retry", map[string]interface{}{"error": err})
	}
	log.Warn("email delivery failed, scheduled retry", map[string]interface{}{
		"error":       sendErr,
		"attempts":    attempts,
		"nextAttempt": nextAttempt,
	})
	return false
}
