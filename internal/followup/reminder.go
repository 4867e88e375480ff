// internal/followup/reminder.go
package followup

import (
	"context"
	"fmt"
	"time"

	"followup-workers/internal/models"

	"github.com/google/uuid"
)

// reminderCacheKey is the redis fast-path key for one follow-up's reminder on
// one UTC calendar day. A cache miss falls through to the history table.
func reminderCacheKey(followUpID string, day time.Time) string {
	return "reminder:" + followUpID + ":" + day.UTC().Format("2006-01-02")
}

// SendReminderEmail enqueues the reminder mail for a follow-up, at most once
// per UTC calendar day. Returns false when today's reminder was already
// recorded; the caller treats that as success, not failure.
func (s *Service) SendReminderEmail(ctx context.Context, id, userID string) (bool, error) {
	f, err := s.Get(ctx, id, userID)
	if err != nil {
		return false, err
	}
	if f.IsTerminal() {
		return false, nil
	}

	now := s.Now().UTC()
	cacheKey := reminderCacheKey(f.ID, now)

	if s.redis != nil {
		exists, err := s.redis.Exists(ctx, cacheKey).Result()
		if err != nil {
			s.logger.Warn("reminder cache check failed, falling back to history", map[string]interface{}{
				"error":      err,
				"followUpId": f.ID,
			})
		} else if exists > 0 {
			return false, nil
		}
	}

	sent, err := s.reminderRecorded(ctx, f.ID, now)
	if err != nil {
		return false, err
	}
	if sent {
		s.backfillCache(ctx, cacheKey)
		return false, nil
	}

	contact, err := s.contacts.Contact(ctx, f.UserID)
	if err != nil {
		return false, fmt.Errorf("lookup reminder recipient: %w", err)
	}

	tmpl, ok := s.templates.Find(models.NotificationTypeFollowUpReminder)
	if !ok {
		return false, fmt.Errorf("no template registered for %s", models.NotificationTypeFollowUpReminder)
	}
	subject, body := tmpl.Render(map[string]interface{}{
		"clientName":     f.ClientName,
		"emailSubject":   f.EmailSubject,
		"sequenceNumber": f.SequenceNumber,
		"dueDate":        f.DueDate.UTC().Format(time.RFC3339),
	})

	if _, err := s.queue.Enqueue(ctx, &models.EmailQueueItem{
		ID:        uuid.New().String(),
		UserID:    f.UserID,
		ToAddress: contact.Email,
		Subject:   subject,
		HTMLBody:  body,
	}); err != nil {
		return false, fmt.Errorf("enqueue reminder email: %w", err)
	}

	if err := s.appendHistory(ctx, f.ID, models.HistoryActionReminderSent, now); err != nil {
		// A duplicate key here means a concurrent caller already recorded
		// today's reminder between our check and this insert. The extra
		// queued mail is the accepted cost of the race; report suppressed.
		if isUniqueViolation(err) {
			s.backfillCache(ctx, cacheKey)
			return false, nil
		}
		return false, fmt.Errorf("record reminder history: %w", err)
	}

	s.backfillCache(ctx, cacheKey)
	return true, nil
}

// reminderRecorded consults the authoritative history table.
func (s *Service) reminderRecorded(ctx context.Context, followUpID string, day time.Time) (bool, error) {
	key := models.HistoryIdempotencyKey(followUpID, models.HistoryActionReminderSent, day)
	var count int
	query := `SELECT COUNT(*) FROM follow_up_history WHERE idempotency_key = $1`
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&count); err != nil {
		return false, fmt.Errorf("check reminder history: %w", err)
	}
	return count > 0, nil
}

func (s *Service) backfillCache(ctx context.Context, key string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, key, "1", s.reminderTTL).Err(); err != nil {
		s.logger.Warn("failed to cache reminder marker", map[string]interface{}{
			"error": err,
			"key":   key,
		})
	}
}
