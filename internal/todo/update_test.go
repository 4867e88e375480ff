// internal/todo/update_test.go
package todo

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "followup-workers/internal/common/errors"
	"followup-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// UpdateStatus Tests
// ==========================

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	_, err := svc.UpdateStatus(context.Background(), "todo-1", "user-1", "archived")

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_CompletedStampsCompletedAt(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE todos SET status = \$3, completed_at = \$4`).
		WithArgs("todo-1", "user-1", models.TodoStatusCompleted, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`SELECT id, user_id, source_notification_id`).
		WithArgs("todo-1", "user-1").
		WillReturnRows(todoRows().AddRow(
			"todo-1", "user-1", nil, "Review: Acme Corp",
			models.TodoStatusCompleted, models.TodoPriorityHigh,
			nil, testNow, nil, testNow.Add(-time.Hour), testNow,
		))

	item, err := svc.UpdateStatus(context.Background(), "todo-1", "user-1", models.TodoStatusCompleted)

	require.NoError(t, err)
	assert.Equal(t, models.TodoStatusCompleted, item.Status)
	require.NotNil(t, item.CompletedAt)
	assert.Equal(t, testNow, *item.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_DismissedStampsDismissedAt(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE todos SET status = \$3, dismissed_at = \$4`).
		WithArgs("todo-1", "user-1", models.TodoStatusDismissed, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`SELECT id, user_id, source_notification_id`).
		WithArgs("todo-1", "user-1").
		WillReturnRows(todoRows().AddRow(
			"todo-1", "user-1", nil, "Review: Acme Corp",
			models.TodoStatusDismissed, models.TodoPriorityMedium,
			nil, nil, testNow, testNow.Add(-time.Hour), testNow,
		))

	item, err := svc.UpdateStatus(context.Background(), "todo-1", "user-1", models.TodoStatusDismissed)

	require.NoError(t, err)
	assert.Equal(t, models.TodoStatusDismissed, item.Status)
	require.NotNil(t, item.DismissedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_OwnershipMismatchLooksLikeAbsence(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE todos SET status = \$3, completed_at = \$4`).
		WithArgs("todo-1", "intruder", models.TodoStatusCompleted, testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.UpdateStatus(context.Background(), "todo-1", "intruder", models.TodoStatusCompleted)

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeNotFoundOrDenied, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_TerminalRowDoesNotMove(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	// Row exists but is already completed: the guarded update matches nothing.
	mock.ExpectExec(`UPDATE todos SET status = \$3, dismissed_at = \$4`).
		WithArgs("todo-1", "user-1", models.TodoStatusDismissed, testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.UpdateStatus(context.Background(), "todo-1", "user-1", models.TodoStatusDismissed)

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeNotFoundOrDenied, stdErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_PastDueRowIsLazilyExpired(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE todos SET status = 'expired'`).
		WithArgs("todo-1", "user-1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`SELECT id, user_id, source_notification_id`).
		WithArgs("todo-1", "user-1").
		WillReturnRows(todoRows().AddRow(
			"todo-1", "user-1", nil, "Review: Acme Corp",
			models.TodoStatusExpired, models.TodoPriorityHigh,
			testNow.Add(-time.Hour), nil, nil, testNow.Add(-48*time.Hour), testNow,
		))

	item, err := svc.UpdateStatus(context.Background(), "todo-1", "user-1", models.TodoStatusInProgress)

	require.NoError(t, err)
	assert.Equal(t, models.TodoStatusExpired, item.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_NotDueProceedsToRequestedStatus(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	// Lazy expiry matches nothing, so the requested transition runs.
	mock.ExpectExec(`UPDATE todos SET status = 'expired'`).
		WithArgs("todo-1", "user-1", testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectExec(`UPDATE todos SET status = \$3, updated_at = \$4`).
		WithArgs("todo-1", "user-1", models.TodoStatusInProgress, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`SELECT id, user_id, source_notification_id`).
		WithArgs("todo-1", "user-1").
		WillReturnRows(todoRows().AddRow(
			"todo-1", "user-1", nil, "Review: Acme Corp",
			models.TodoStatusInProgress, models.TodoPriorityHigh,
			testNow.Add(time.Hour), nil, nil, testNow.Add(-48*time.Hour), testNow,
		))

	item, err := svc.UpdateStatus(context.Background(), "todo-1", "user-1", models.TodoStatusInProgress)

	require.NoError(t, err)
	assert.Equal(t, models.TodoStatusInProgress, item.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_DatabaseErrorIsWrapped(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE todos SET status = \$3, completed_at = \$4`).
		WithArgs("todo-1", "user-1", models.TodoStatusCompleted, testNow).
		WillReturnError(errors.New("connection reset"))

	_, err := svc.UpdateStatus(context.Background(), "todo-1", "user-1", models.TodoStatusCompleted)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "update todo status")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// ExpireOverdue Tests
// ==========================

func TestExpireOverdue_ReturnsFlippedCount(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE todos SET status = 'expired'`).
		WithArgs(testNow).
		WillReturnResult(sqlmock.NewResult(0, 7))

	count, err := svc.ExpireOverdue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireOverdue_NothingDue(t *testing.T) {
	svc, mock, cleanup := createTestService(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE todos SET status = 'expired'`).
		WithArgs(testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	count, err := svc.ExpireOverdue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
