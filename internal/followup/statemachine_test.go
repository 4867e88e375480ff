// internal/followup/statemachine_test.go
package followup

import (
	"context"
	"testing"
	"time"

	apperrors "followup-workers/internal/common/errors"
	"followup-workers/internal/common/logger"
	"followup-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func createTestService(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	svc := NewService(db, logger.NewTestLogger(t), nil, nil, nil, nil, 0)
	svc.Now = func() time.Time { return testNow }

	return svc, mock, func() { db.Close() }
}

func followUpColumns() []string {
	return []string{
		"id", "user_id", "client_id", "client_name", "email_subject", "sequence_number",
		"due_date", "status", "escalated", "escalation_date", "manager_id",
		"completion_reason", "created_at", "updated_at",
	}
}

// ==========================
// Complete Tests
// ==========================

func TestComplete_RequiresReason(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	_, err := svc.Complete(context.Background(), "fu-1", "user-1", "")

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete_TerminatesPendingFollowUp(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE follow_ups SET status = 'completed'`).
		WithArgs("fu-1", "user-1", "client replied", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows(followUpColumns()).AddRow(
		"fu-1", "user-1", "client-1", "Acme Corp", "Q3 proposal", 2,
		testNow.Add(-time.Hour), models.FollowUpStatusCompleted, false, nil, nil,
		"client replied", testNow.Add(-72*time.Hour), testNow,
	)
	mock.ExpectQuery(`SELECT id, user_id, client_id`).
		WithArgs("fu-1", "user-1").
		WillReturnRows(rows)

	f, err := svc.Complete(context.Background(), "fu-1", "user-1", "client replied")

	require.NoError(t, err)
	assert.Equal(t, models.FollowUpStatusCompleted, f.Status)
	require.NotNil(t, f.CompletionReason)
	assert.Equal(t, "client replied", *f.CompletionReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete_OwnershipMismatchLooksLikeAbsence(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE follow_ups SET status = 'completed'`).
		WithArgs("fu-1", "intruder", "done", testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.Complete(context.Background(), "fu-1", "intruder", "done")

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeNotFoundOrDenied, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// MarkNoResponse Tests
// ==========================

func TestMarkNoResponse_GuardsOnFinalSequence(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	// Sequence below the final attempt: the guarded update matches nothing.
	mock.ExpectExec(`UPDATE follow_ups SET status = 'no_response'`).
		WithArgs("fu-1", "user-1", testNow, models.MaxFollowUpSequence).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.MarkNoResponse(context.Background(), "fu-1", "user-1")

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeNotFoundOrDenied, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNoResponse_TerminatesFinalAttempt(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE follow_ups SET status = 'no_response'`).
		WithArgs("fu-1", "user-1", testNow, models.MaxFollowUpSequence).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows(followUpColumns()).AddRow(
		"fu-1", "user-1", "client-1", "Acme Corp", "Q3 proposal", 3,
		testNow.Add(-time.Hour), models.FollowUpStatusNoResponse, false, nil, nil, nil,
		testNow.Add(-72*time.Hour), testNow,
	)
	mock.ExpectQuery(`SELECT id, user_id, client_id`).
		WithArgs("fu-1", "user-1").
		WillReturnRows(rows)

	f, err := svc.MarkNoResponse(context.Background(), "fu-1", "user-1")

	require.NoError(t, err)
	assert.Equal(t, models.FollowUpStatusNoResponse, f.Status)
	assert.True(t, f.IsTerminal())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Snooze Tests
// ==========================

func TestSnooze_RejectsPastDueDate(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	_, err := svc.Snooze(context.Background(), "fu-1", "user-1", testNow.Add(-time.Minute))

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnooze_ClearsEscalationState(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	newDue := testNow.Add(48 * time.Hour)

	mock.ExpectExec(`UPDATE follow_ups SET due_date = \$3, escalated = false, escalation_date = NULL, manager_id = NULL`).
		WithArgs("fu-1", "user-1", newDue, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows(followUpColumns()).AddRow(
		"fu-1", "user-1", "client-1", "Acme Corp", "Q3 proposal", 2,
		newDue, models.FollowUpStatusPending, false, nil, nil, nil,
		testNow.Add(-72*time.Hour), testNow,
	)
	mock.ExpectQuery(`SELECT id, user_id, client_id`).
		WithArgs("fu-1", "user-1").
		WillReturnRows(rows)

	f, err := svc.Snooze(context.Background(), "fu-1", "user-1", newDue)

	require.NoError(t, err)
	assert.Equal(t, newDue, f.DueDate)
	assert.False(t, f.Escalated)
	assert.Nil(t, f.EscalationDate)
	assert.Nil(t, f.ManagerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnooze_OnlyPendingRowsMove(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	newDue := testNow.Add(48 * time.Hour)

	mock.ExpectExec(`UPDATE follow_ups SET due_date = \$3`).
		WithArgs("fu-1", "user-1", newDue, testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.Snooze(context.Background(), "fu-1", "user-1", newDue)

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeNotFoundOrDenied, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Escalate Tests
// ==========================

func TestEscalate_RequiresManager(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	_, err := svc.Escalate(context.Background(), "fu-1", "")

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscalate_IneligibleRowReturnsSentinel(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE follow_ups SET escalated = true`).
		WithArgs("fu-1", testNow, "mgr-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.Escalate(context.Background(), "fu-1", "mgr-1")

	assert.ErrorIs(t, err, ErrNotEligible)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscalate_FlagsRowAndAppendsHistory(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE follow_ups SET escalated = true`).
		WithArgs("fu-1", testNow, "mgr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`INSERT INTO follow_up_history`).
		WithArgs(
			sqlmock.AnyArg(), "fu-1", models.HistoryActionEscalated,
			models.HistoryIdempotencyKey("fu-1", models.HistoryActionEscalated, testNow),
			testNow,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rows := sqlmock.NewRows(followUpColumns()).AddRow(
		"fu-1", "user-1", "client-1", "Acme Corp", "Q3 proposal", 2,
		testNow.Add(-time.Hour), models.FollowUpStatusPending, true, testNow, "mgr-1", nil,
		testNow.Add(-72*time.Hour), testNow,
	)
	mock.ExpectQuery(`SELECT id, user_id, client_id`).
		WithArgs("fu-1").
		WillReturnRows(rows)

	f, err := svc.Escalate(context.Background(), "fu-1", "mgr-1")

	require.NoError(t, err)
	assert.True(t, f.Escalated)
	require.NotNil(t, f.ManagerID)
	assert.Equal(t, "mgr-1", *f.ManagerID)
	require.NotNil(t, f.EscalationDate)
	assert.Equal(t, testNow, *f.EscalationDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscalate_HistoryFailureDoesNotUndoTransition(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE follow_ups SET escalated = true`).
		WithArgs("fu-1", testNow, "mgr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`INSERT INTO follow_up_history`).
		WillReturnError(assert.AnError)

	rows := sqlmock.NewRows(followUpColumns()).AddRow(
		"fu-1", "user-1", "client-1", "Acme Corp", "Q3 proposal", 2,
		testNow.Add(-time.Hour), models.FollowUpStatusPending, true, testNow, "mgr-1", nil,
		testNow.Add(-72*time.Hour), testNow,
	)
	mock.ExpectQuery(`SELECT id, user_id, client_id`).
		WithArgs("fu-1").
		WillReturnRows(rows)

	f, err := svc.Escalate(context.Background(), "fu-1", "mgr-1")

	require.NoError(t, err)
	assert.True(t, f.Escalated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Get Tests
// ==========================

func TestGet_NotFound(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, user_id, client_id`).
		WithArgs("fu-missing", "user-1").
		WillReturnRows(sqlmock.NewRows(followUpColumns()))

	_, err := svc.Get(context.Background(), "fu-missing", "user-1")

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeNotFoundOrDenied, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
