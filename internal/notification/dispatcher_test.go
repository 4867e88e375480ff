// internal/notification/dispatcher_test.go
package notification

import (
	"context"
	"errors"
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
// Mocks
// ==========================

type mockListener struct {
	ProcessNotificationFunc func(ctx context.Context, n *models.Notification) (*models.Todo, error)
	received                []*models.Notification
}

func (m *mockListener) ProcessNotification(ctx context.Context, n *models.Notification) (*models.Todo, error) {
	m.received = append(m.received, n)
	if m.ProcessNotificationFunc != nil {
		return m.ProcessNotificationFunc(ctx, n)
	}
	return nil, nil
}

type mockEnqueuer struct {
	EnqueueFunc func(ctx context.Context, item *models.EmailQueueItem) (*models.EmailQueueItem, error)
	items       []*models.EmailQueueItem
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, item *models.EmailQueueItem) (*models.EmailQueueItem, error) {
	m.items = append(m.items, item)
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, item)
	}
	return item, nil
}

type mockContacts struct {
	ContactFunc func(ctx context.Context, userID string) (*models.User, error)
}

func (m *mockContacts) Contact(ctx context.Context, userID string) (*models.User, error) {
	if m.ContactFunc != nil {
		return m.ContactFunc(ctx, userID)
	}
	return &models.User{ID: userID, Email: userID + "@example.com"}, nil
}

// ==========================
// Test Helpers
// ==========================

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	mock       sqlmock.Sqlmock
	listener   *mockListener
	queue      *mockEnqueuer
	contacts   *mockContacts
	cleanup    func()
}

func createTestDispatcher(t *testing.T) *dispatcherFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	f := &dispatcherFixture{
		mock:     mock,
		listener: &mockListener{},
		queue:    &mockEnqueuer{},
		contacts: &mockContacts{},
		cleanup:  func() { db.Close() },
	}
	f.dispatcher = NewDispatcher(db, logger.NewTestLogger(t), f.listener, f.queue, f.contacts, nil, 0)
	f.dispatcher.Now = func() time.Time { return testNow }
	return f
}

func createTestInput() *CreateInput {
	return &CreateInput{
		UserID:  "user-1",
		Type:    models.NotificationTypeEscalation,
		Title:   "Follow-up escalated: Acme Corp",
		Message: "The follow-up for Acme Corp is overdue.",
	}
}

// ==========================
// Create Tests
// ==========================

func TestCreate_RequiresRecipient(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	in := createTestInput()
	in.UserID = ""

	_, err := f.dispatcher.Create(context.Background(), in)

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, stdErr.Code)
}

func TestCreate_RejectsUnknownType(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	in := createTestInput()
	in.Type = "carrier_pigeon"

	_, err := f.dispatcher.Create(context.Background(), in)

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, stdErr.Code)
}

func TestCreate_RequiresTitle(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	in := createTestInput()
	in.Title = ""

	_, err := f.dispatcher.Create(context.Background(), in)

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, stdErr.Code)
}

func TestCreate_PersistsAndFansOut(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	f.mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(
			sqlmock.AnyArg(), "user-1", models.NotificationTypeEscalation,
			"Follow-up escalated: Acme Corp", "The follow-up for Acme Corp is overdue.",
			nil, nil, testNow,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	n, err := f.dispatcher.Create(context.Background(), createTestInput())

	require.NoError(t, err)
	require.NotNil(t, n)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Read)

	// Fan-out reached both consumers.
	require.Len(t, f.listener.received, 1)
	assert.Equal(t, n.ID, f.listener.received[0].ID)
	require.Len(t, f.queue.items, 1)
	assert.Equal(t, "user-1@example.com", f.queue.items[0].ToAddress)
	require.NotNil(t, f.queue.items[0].NotificationID)
	assert.Equal(t, n.ID, *f.queue.items[0].NotificationID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreate_TemplateRendersEmailSubject(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	in := createTestInput()
	in.Metadata = map[string]interface{}{"clientName": "Acme Corp"}

	f.mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(
			sqlmock.AnyArg(), "user-1", models.NotificationTypeEscalation,
			in.Title, in.Message, nil, sqlmock.AnyArg(), testNow,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := f.dispatcher.Create(context.Background(), in)

	require.NoError(t, err)
	require.Len(t, f.queue.items, 1)
	assert.Contains(t, f.queue.items[0].Subject, "Acme Corp")
	assert.NotEmpty(t, f.queue.items[0].HTMLBody)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreate_ListenerFailureDoesNotFailCreate(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	f.listener.ProcessNotificationFunc = func(ctx context.Context, n *models.Notification) (*models.Todo, error) {
		return nil, errors.New("todo insert deadlock")
	}

	f.mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	n, err := f.dispatcher.Create(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.NotNil(t, n)
	// Email fan-out still ran.
	assert.Len(t, f.queue.items, 1)
}

func TestCreate_MissingContactEmailSkipsEnqueue(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	f.contacts.ContactFunc = func(ctx context.Context, userID string) (*models.User, error) {
		return &models.User{ID: userID}, nil
	}

	f.mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	n, err := f.dispatcher.Create(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.NotNil(t, n)
	assert.Empty(t, f.queue.items)
}

func TestCreate_ContactLookupFailureSkipsEnqueue(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	f.contacts.ContactFunc = func(ctx context.Context, userID string) (*models.User, error) {
		return nil, errors.New("directory unreachable")
	}

	f.mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := f.dispatcher.Create(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.Empty(t, f.queue.items)
}

func TestCreateQuiet_DegradesToNil(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	f.mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnError(errors.New("connection refused"))

	n := f.dispatcher.CreateQuiet(context.Background(), createTestInput())

	assert.Nil(t, n)
}

// ==========================
// Read Path Tests
// ==========================

func TestGetByUser_ReturnsFeedWithUnreadCount(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	f.mock.ExpectQuery(`SELECT id, user_id, type, title, message`).
		WithArgs("user-1", 100).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "type", "title", "message", "related_id", "metadata", "read", "created_at",
		}).
			AddRow("n-2", "user-1", models.NotificationTypeEscalation, "t2", "m2", "fu-1", []byte(`{"clientName":"Acme"}`), false, testNow).
			AddRow("n-1", "user-1", models.NotificationTypeFollowUpReminder, "t1", "m1", nil, nil, true, testNow.Add(-time.Hour)))

	f.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notifications`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	feed, err := f.dispatcher.GetByUser(context.Background(), "user-1")

	require.NoError(t, err)
	require.Len(t, feed.Notifications, 2)
	assert.Equal(t, "n-2", feed.Notifications[0].ID)
	require.NotNil(t, feed.Notifications[0].RelatedID)
	assert.Equal(t, "fu-1", *feed.Notifications[0].RelatedID)
	assert.Equal(t, "Acme", feed.Notifications[0].Metadata["clientName"])
	assert.Nil(t, feed.Notifications[1].RelatedID)
	assert.Equal(t, 1, feed.UnreadCount)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMarkAsRead_OwnershipMismatchIsSilent(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	f.mock.ExpectExec(`UPDATE notifications SET read = true WHERE id = \$1 AND user_id = \$2`).
		WithArgs("n-1", "intruder").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := f.dispatcher.MarkAsRead(context.Background(), "n-1", "intruder")

	assert.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMarkAllAsRead_ReturnsAffectedCount(t *testing.T) {
	f := createTestDispatcher(t)
	defer f.cleanup()

	f.mock.ExpectExec(`UPDATE notifications SET read = true`).
		WithArgs("user-1", 500).
		WillReturnResult(sqlmock.NewResult(0, 42))

	count, err := f.dispatcher.MarkAllAsRead(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, 42, count)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
