// internal/todo/automation.go
package todo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"followup-workers/internal/common/logger"
	"followup-workers/internal/common/metrics"
	"followup-workers/internal/models"

	"github.com/google/uuid"
)

// todoTemplate maps a notification type to the work item it should produce.
type todoTemplate struct {
	titlePrefix string
	dueOffset   time.Duration
	priority    string
}

// Notification types without an entry here never produce todos. Digests are
// informational and deliberately absent.
var todoTemplates = map[string]todoTemplate{
	models.NotificationTypeEscalation: {
		titlePrefix: "Review escalated follow-up",
		dueOffset:   24 * time.Hour,
		priority:    models.TodoPriorityHigh,
	},
	models.NotificationTypeReviewRequested: {
		titlePrefix: "Review",
		dueOffset:   72 * time.Hour,
		priority:    models.TodoPriorityMedium,
	},
	models.NotificationTypeFollowUpReminder: {
		titlePrefix: "Follow up",
		dueOffset:   24 * time.Hour,
		priority:    models.TodoPriorityMedium,
	},
}

// Service synthesizes and mutates todos. It is the consumer side of the
// notification fan-out, which is delivered at least once, so every write here
// must be idempotent.
type Service struct {
	db     *sql.DB
	logger logger.Logger

	// Now is the clock; swapped in tests.
	Now func() time.Time
}

func NewService(db *sql.DB, log logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: log,
		Now:    time.Now,
	}
}

// ProcessNotification turns one notification into a todo. Unknown types are
// ignored (nil, nil). Redelivery of the same notification returns the todo
// created by the first delivery instead of inserting a duplicate.
func (s *Service) ProcessNotification(ctx context.Context, n *models.Notification) (*models.Todo, error) {
	tpl, ok := todoTemplates[n.Type]
	if !ok {
		s.logger.Debug("notification type has no todo template, skipping", map[string]interface{}{
			"type":           n.Type,
			"notificationId": n.ID,
		})
		return nil, nil
	}

	if existing, err := s.findBySource(ctx, n.ID, n.UserID); err != nil {
		return nil, err
	} else if existing != nil {
		s.logger.Debug("todo already exists for notification, skipping", map[string]interface{}{
			"notificationId": n.ID,
			"todoId":         existing.ID,
		})
		return existing, nil
	}

	now := s.Now().UTC()
	due := s.dueDateFor(n, tpl, now)

	item := &models.Todo{
		ID:                   uuid.New().String(),
		UserID:               n.UserID,
		SourceNotificationID: &n.ID,
		Title:                fmt.Sprintf("%s: %s", tpl.titlePrefix, n.Title),
		Status:               models.TodoStatusPending,
		Priority:             tpl.priority,
		DueDate:              &due,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	query := `
		INSERT INTO todos
			(id, user_id, source_notification_id, title, status, priority, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.UserID, item.SourceNotificationID, item.Title,
		item.Status, item.Priority, item.DueDate, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert todo: %w", err)
	}

	metrics.TodosCreated.WithLabelValues(n.Type).Inc()
	s.logger.Info("todo created from notification", map[string]interface{}{
		"todoId":         item.ID,
		"notificationId": n.ID,
		"priority":       item.Priority,
	})
	return item, nil
}

// dueDateFor prefers an explicit dueDate in the notification metadata,
// falling back to the template's offset from now.
func (s *Service) dueDateFor(n *models.Notification, tpl todoTemplate, now time.Time) time.Time {
	if n.Metadata != nil {
		if raw, ok := n.Metadata["dueDate"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
				return parsed.UTC()
			}
			s.logger.Warn("unparseable dueDate in notification metadata", map[string]interface{}{
				"notificationId": n.ID,
				"dueDate":        raw,
			})
		}
	}
	return now.Add(tpl.dueOffset)
}

func (s *Service) findBySource(ctx context.Context, notificationID, userID string) (*models.Todo, error) {
	query := `
		SELECT id, user_id, source_notification_id, title, status, priority, due_date, completed_at, dismissed_at, created_at, updated_at
		FROM todos
		WHERE source_notification_id = $1 AND user_id = $2`

	row := s.db.QueryRowContext(ctx, query, notificationID, userID)
	item, err := scanTodo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find todo by source: %w", err)
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTodo(row rowScanner) (*models.Todo, error) {
	var item models.Todo
	var sourceID sql.NullString
	var due, completed, dismissed sql.NullTime

	err := row.Scan(
		&item.ID, &item.UserID, &sourceID, &item.Title, &item.Status,
		&item.Priority, &due, &completed, &dismissed, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sourceID.Valid {
		item.SourceNotificationID = &sourceID.String
	}
	if due.Valid {
		t := due.Time
		item.DueDate = &t
	}
	if completed.Valid {
		t := completed.Time
		item.CompletedAt = &t
	}
	if dismissed.Valid {
		t := dismissed.Time
		item.DismissedAt = &t
	}
	return &item, nil
}
