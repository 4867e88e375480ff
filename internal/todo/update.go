// internal/todo/update.go
package todo

import (
	"context"
	"fmt"

	apperrors "followup-workers/internal/common/errors"
	"followup-workers/internal/models"
)

// UpdateStatus moves a todo owned by ownerID to newStatus. Transitions are
// monotonic except pending<->in_progress; terminal rows never move again. An
// ownership mismatch is reported exactly like absence.
//
// A past-due row touched with a non-terminal target is lazily expired instead,
// and the expired row is returned.
func (s *Service) UpdateStatus(ctx context.Context, todoID, ownerID, newStatus string) (*models.Todo, error) {
	if !models.IsValidTodoStatus(newStatus) {
		return nil, apperrors.NewValidationFailedError(fmt.Sprintf("unknown todo status: %s", newStatus))
	}

	now := s.Now().UTC()

	if newStatus == models.TodoStatusPending || newStatus == models.TodoStatusInProgress {
		expired, err := s.lazyExpire(ctx, todoID, ownerID)
		if err != nil {
			return nil, err
		}
		if expired != nil {
			return expired, nil
		}
	}

	var query string
	switch newStatus {
	case models.TodoStatusCompleted:
		query = `UPDATE todos SET status = $3, completed_at = $4, updated_at = $4
			WHERE id = $1 AND user_id = $2 AND status IN ('pending', 'in_progress')`
	case models.TodoStatusDismissed:
		query = `UPDATE todos SET status = $3, dismissed_at = $4, updated_at = $4
			WHERE id = $1 AND user_id = $2 AND status IN ('pending', 'in_progress')`
	default:
		query = `UPDATE todos SET status = $3, updated_at = $4
			WHERE id = $1 AND user_id = $2 AND status IN ('pending', 'in_progress')`
	}

	res, err := s.db.ExecContext(ctx, query, todoID, ownerID, newStatus, now)
	if err != nil {
		return nil, fmt.Errorf("update todo status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update todo status: %w", err)
	}
	if affected == 0 {
		return nil, apperrors.NewNotFoundOrDeniedError("todo")
	}

	return s.getOwned(ctx, todoID, ownerID)
}

// lazyExpire flips a past-due, non-terminal row to expired. Returns the
// expired row when it fired, nil when the row was not due.
func (s *Service) lazyExpire(ctx context.Context, todoID, ownerID string) (*models.Todo, error) {
	now := s.Now().UTC()
	query := `UPDATE todos SET status = 'expired', updated_at = $3
		WHERE id = $1 AND user_id = $2 AND status IN ('pending', 'in_progress')
		AND due_date IS NOT NULL AND due_date < $3`

	res, err := s.db.ExecContext(ctx, query, todoID, ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("lazy expire todo: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("lazy expire todo: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.getOwned(ctx, todoID, ownerID)
}

// ExpireOverdue is the sweep form of expiry: every non-terminal row whose due
// date passed becomes expired. Returns the number of rows flipped.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.Now().UTC()
	query := `UPDATE todos SET status = 'expired', updated_at = $1
		WHERE status IN ('pending', 'in_progress') AND due_date IS NOT NULL AND due_date < $1`

	res, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue todos: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire overdue todos: %w", err)
	}
	return int(affected), nil
}

func (s *Service) getOwned(ctx context.Context, todoID, ownerID string) (*models.Todo, error) {
	query := `
		SELECT id, user_id, source_notification_id, title, status, priority, due_date, completed_at, dismissed_at, created_at, updated_at
		FROM todos
		WHERE id = $1 AND user_id = $2`

	row := s.db.QueryRowContext(ctx, query, todoID, ownerID)
	item, err := scanTodo(row)
	if err != nil {
		return nil, fmt.Errorf("get todo: %w", err)
	}
	return item, nil
}
