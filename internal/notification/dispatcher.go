// internal/notification/dispatcher.go
package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "followup-workers/internal/common/errors"
	"followup-workers/internal/common/directory"
	"followup-workers/internal/common/logger"
	"followup-workers/internal/common/metrics"
	"followup-workers/internal/models"
	"followup-workers/pkg/registry"

	"github.com/google/uuid"
)

// Listener consumes newly created notifications. Delivery is at least once,
// so implementations must be idempotent.
type Listener interface {
	ProcessNotification(ctx context.Context, n *models.Notification) (*models.Todo, error)
}

// Enqueuer is the email outbox the dispatcher fans out to.
type Enqueuer interface {
	Enqueue(ctx context.Context, item *models.EmailQueueItem) (*models.EmailQueueItem, error)
}

// CreateInput is the payload for notification creation.
type CreateInput struct {
	UserID    string                 `json:"userId"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	RelatedID *string                `json:"relatedId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Dispatcher persists notifications and fans them out to the todo listener
// and the email queue. Fan-out failures are logged and swallowed: a failing
// notification must never block the business action that triggered it.
type Dispatcher struct {
	db           *sql.DB
	logger       logger.Logger
	listener     Listener
	queue        Enqueuer
	contacts     directory.ContactLookup
	templates    *registry.TemplateRegistry
	markAllLimit int

	// Now is the clock; swapped in tests.
	Now func() time.Time
}

func NewDispatcher(
	db *sql.DB,
	log logger.Logger,
	listener Listener,
	queue Enqueuer,
	contacts directory.ContactLookup,
	templates *registry.TemplateRegistry,
	markAllLimit int,
) *Dispatcher {
	if templates == nil {
		templates = registry.Default()
	}
	if markAllLimit == 0 {
		markAllLimit = 500
	}
	return &Dispatcher{
		db:           db,
		logger:       log,
		listener:     listener,
		queue:        queue,
		contacts:     contacts,
		templates:    templates,
		markAllLimit: markAllLimit,
		Now:          time.Now,
	}
}

// Create persists a notification and triggers fan-out. The returned error is
// for maintenance callers; user-facing paths are expected to log it and move
// on (see CreateQuiet).
func (d *Dispatcher) Create(ctx context.Context, in *CreateInput) (*models.Notification, error) {
	if in.UserID == "" {
		return nil, apperrors.NewValidationFailedError("recipient user id is required")
	}
	if !models.IsKnownNotificationType(in.Type) {
		return nil, apperrors.NewValidationFailedError(fmt.Sprintf("unknown notification type: %s", in.Type))
	}
	if in.Title == "" {
		return nil, apperrors.NewValidationFailedError("title is required")
	}

	now := d.Now().UTC()
	n := &models.Notification{
		ID:        uuid.New().String(),
		UserID:    in.UserID,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		RelatedID: in.RelatedID,
		Metadata:  in.Metadata,
		CreatedAt: now,
	}

	var metadataJSON []byte
	if n.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(n.Metadata)
		if err != nil {
			return nil, apperrors.NewValidationFailedError(fmt.Sprintf("unserializable metadata: %v", err))
		}
	}

	query := `
		INSERT INTO notifications
			(id, user_id, type, title, message, related_id, metadata, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)`

	_, err := d.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.RelatedID, metadataJSON, n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	metrics.NotificationsCreated.WithLabelValues(n.Type).Inc()
	d.fanOut(ctx, n)
	return n, nil
}

// CreateQuiet is Create for user-facing paths: failures degrade to a logged
// no-op and a nil notification.
func (d *Dispatcher) CreateQuiet(ctx context.Context, in *CreateInput) *models.Notification {
	n, err := d.Create(ctx, in)
	if err != nil {
		d.logger.Error("notification creation failed, continuing", map[string]interface{}{
			"error":     err,
			"recipient": in.UserID,
			"type":      in.Type,
		})
		return nil
	}
	return n
}

// fanOut triggers the todo listener and enqueues the delivery email. Every
// notification is a candidate for task generation.
func (d *Dispatcher) fanOut(ctx context.Context, n *models.Notification) {
	if d.listener != nil {
		if _, err := d.listener.ProcessNotification(ctx, n); err != nil {
			d.logger.Error("todo automation failed for notification", map[string]interface{}{
				"error":          err,
				"notificationId": n.ID,
			})
		}
	}

	if d.queue == nil || d.contacts == nil {
		return
	}

	contact, err := d.contacts.Contact(ctx, n.UserID)
	if err != nil {
		d.logger.Warn("recipient contact lookup failed, skipping email", map[string]interface{}{
			"error":  err,
			"userId": n.UserID,
		})
		return
	}
	if contact.Email == "" {
		return
	}

	subject, body := n.Title, "<p>"+n.Message+"</p>"
	if tpl, ok := d.templates.Find(n.Type); ok {
		data := map[string]interface{}{
			"title":   n.Title,
			"message": n.Message,
			"userId":  n.UserID,
		}
		for k, v := range n.Metadata {
			data[k] = v
		}
		subject, body = tpl.Render(data)
	}

	if _, err := d.queue.Enqueue(ctx, &models.EmailQueueItem{
		NotificationID: &n.ID,
		UserID:         n.UserID,
		ToAddress:      contact.Email,
		Subject:        subject,
		HTMLBody:       body,
	}); err != nil {
		d.logger.Error("email enqueue failed for notification", map[string]interface{}{
			"error":          err,
			"notificationId": n.ID,
		})
	}
}
