// internal/followup/statemachine.go
package followup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "followup-workers/internal/common/errors"
	"followup-workers/internal/common/directory"
	"followup-workers/internal/common/logger"
	"followup-workers/internal/models"
	"followup-workers/pkg/registry"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// ErrNotEligible is returned by Escalate when the row's pre-state no longer
// qualifies: already escalated, no longer pending, or not yet overdue. A
// concurrent sweep losing the conditional update sees exactly this.
var ErrNotEligible = errors.New("follow-up not eligible for escalation")

// Enqueuer is the email outbox used by the reminder path.
type Enqueuer interface {
	Enqueue(ctx context.Context, item *models.EmailQueueItem) (*models.EmailQueueItem, error)
}

// Service owns follow-up lifecycle transitions. Every mutation is a single
// conditional UPDATE guarded on the expected pre-state; a losing concurrent
// writer affects zero rows instead of corrupting state.
type Service struct {
	db          *sql.DB
	logger      logger.Logger
	redis       *redis.Client // fast-path reminder dedupe; history table is authoritative
	queue       Enqueuer
	contacts    directory.ContactLookup
	templates   *registry.TemplateRegistry
	reminderTTL time.Duration

	// Now is the clock; swapped in tests.
	Now func() time.Time
}

func NewService(
	db *sql.DB,
	log logger.Logger,
	rdb *redis.Client,
	queue Enqueuer,
	contacts directory.ContactLookup,
	templates *registry.TemplateRegistry,
	reminderTTL time.Duration,
) *Service {
	if templates == nil {
		templates = registry.Default()
	}
	if reminderTTL == 0 {
		reminderTTL = 24 * time.Hour
	}
	return &Service{
		db:          db,
		logger:      log,
		redis:       rdb,
		queue:       queue,
		contacts:    contacts,
		templates:   templates,
		reminderTTL: reminderTTL,
		Now:         time.Now,
	}
}

// Get returns one follow-up owned by userID, or not-found/denied.
func (s *Service) Get(ctx context.Context, id, userID string) (*models.FollowUp, error) {
	query := selectColumns + ` FROM follow_ups WHERE id = $1 AND user_id = $2`
	row := s.db.QueryRowContext(ctx, query, id, userID)
	f, err := scanFollowUp(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundOrDeniedError("follow-up")
		}
		return nil, fmt.Errorf("get follow-up: %w", err)
	}
	return f, nil
}

// Complete terminates a pending or snoozed follow-up with a reason.
func (s *Service) Complete(ctx context.Context, id, userID, reason string) (*models.FollowUp, error) {
	if reason == "" {
		return nil, apperrors.NewValidationFailedError("completion reason is required")
	}

	now := s.Now().UTC()
	query := `UPDATE follow_ups SET status = 'completed', completion_reason = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status IN ('pending', 'snoozed')`

	if err := s.execGuarded(ctx, query, id, userID, reason, now); err != nil {
		return nil, err
	}
	return s.Get(ctx, id, userID)
}

// MarkNoResponse terminates the thread after the final follow-up attempt.
// Valid only once the sequence has reached its last number.
func (s *Service) MarkNoResponse(ctx context.Context, id, userID string) (*models.FollowUp, error) {
	now := s.Now().UTC()
	query := `UPDATE follow_ups SET status = 'no_response', updated_at = $3
		WHERE id = $1 AND user_id = $2 AND status IN ('pending', 'snoozed') AND sequence_number >= $4`

	if err := s.execGuarded(ctx, query, id, userID, now, models.MaxFollowUpSequence); err != nil {
		return nil, err
	}
	return s.Get(ctx, id, userID)
}

// Snooze pushes the due date out and clears any escalation state so the
// rescheduled obligation starts clean.
func (s *Service) Snooze(ctx context.Context, id, userID string, newDueDate time.Time) (*models.FollowUp, error) {
	now := s.Now().UTC()
	if !newDueDate.After(now) {
		return nil, apperrors.NewValidationFailedError("snooze due date must be in the future")
	}

	query := `UPDATE follow_ups SET due_date = $3, escalated = false, escalation_date = NULL, manager_id = NULL, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status = 'pending'`

	if err := s.execGuarded(ctx, query, id, userID, newDueDate.UTC(), now); err != nil {
		return nil, err
	}
	return s.Get(ctx, id, userID)
}

// Escalate flags an overdue, unescalated, pending follow-up for manager
// attention and appends the history record. The escalated guard makes repeated
// and concurrent sweeps safe.
func (s *Service) Escalate(ctx context.Context, id, managerID string) (*models.FollowUp, error) {
	if managerID == "" {
		return nil, apperrors.NewValidationFailedError("manager id is required for escalation")
	}

	now := s.Now().UTC()
	query := `UPDATE follow_ups SET escalated = true, escalation_date = $2, manager_id = $3, updated_at = $2
		WHERE id = $1 AND status = 'pending' AND escalated = false AND due_date < $2`

	res, err := s.db.ExecContext(ctx, query, id, now, managerID)
	if err != nil {
		return nil, fmt.Errorf("escalate follow-up: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("escalate follow-up: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotEligible
	}

	if err := s.appendHistory(ctx, id, models.HistoryActionEscalated, now); err != nil {
		// The transition itself committed; a missing history row only affects
		// the audit trail, so log and keep going.
		s.logger.Error("failed to append escalation history", map[string]interface{}{
			"error":      err,
			"followUpId": id,
		})
	}

	query = selectColumns + ` FROM follow_ups WHERE id = $1`
	f, err := scanFollowUp(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("reload escalated follow-up: %w", err)
	}
	return f, nil
}

// execGuarded runs a conditional single-row update and maps zero affected
// rows to the uniform not-found/denied error.
func (s *Service) execGuarded(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("follow-up transition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("follow-up transition: %w", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundOrDeniedError("follow-up")
	}
	return nil
}

func (s *Service) appendHistory(ctx context.Context, followUpID, action string, now time.Time) error {
	key := models.HistoryIdempotencyKey(followUpID, action, now)
	query := `
		INSERT INTO follow_up_history (id, follow_up_id, action, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, query, uuid.New().String(), followUpID, action, key, now)
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const selectColumns = `SELECT id, user_id, client_id, client_name, email_subject, sequence_number, due_date, status,
	escalated, escalation_date, manager_id, completion_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFollowUp(row rowScanner) (*models.FollowUp, error) {
	var f models.FollowUp
	var escalationDate sql.NullTime
	var managerID, completionReason sql.NullString

	err := row.Scan(
		&f.ID, &f.UserID, &f.ClientID, &f.ClientName, &f.EmailSubject,
		&f.SequenceNumber, &f.DueDate, &f.Status, &f.Escalated,
		&escalationDate, &managerID, &completionReason, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if escalationDate.Valid {
		t := escalationDate.Time
		f.EscalationDate = &t
	}
	if managerID.Valid {
		f.ManagerID = &managerID.String
	}
	if completionReason.Valid {
		f.CompletionReason = &completionReason.String
	}
	return &f, nil
}
