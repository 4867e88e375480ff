// internal/notification/read.go
package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"followup-workers/internal/models"
)

// listLimit bounds GetByUser so a noisy account cannot drag the whole table
// through one query.
const listLimit = 100

// UserFeed is a user's notification list plus their unread count.
type UserFeed struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

// GetByUser returns the most recent notifications for a user, newest first.
func (d *Dispatcher) GetByUser(ctx context.Context, userID string) (*UserFeed, error) {
	query := `
		SELECT id, user_id, type, title, message, related_id, metadata, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := d.db.QueryContext(ctx, query, userID, listLimit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	feed := &UserFeed{Notifications: []models.Notification{}}
	for rows.Next() {
		var n models.Notification
		var relatedID sql.NullString
		var metadataJSON []byte
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&relatedID, &metadataJSON, &n.Read, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if relatedID.Valid {
			n.RelatedID = &relatedID.String
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &n.Metadata); err != nil {
				d.logger.Warn("corrupt notification metadata", map[string]interface{}{
					"notificationId": n.ID,
					"error":          err,
				})
			}
		}
		feed.Notifications = append(feed.Notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = false`
	if err := d.db.QueryRowContext(ctx, countQuery, userID).Scan(&feed.UnreadCount); err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	return feed, nil
}

// MarkAsRead flips the read flag when the notification belongs to userID. An
// ownership mismatch is a silent success so the call never reveals whether
// another user's notification exists.
func (d *Dispatcher) MarkAsRead(ctx context.Context, notificationID, userID string) error {
	query := `UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`
	if _, err := d.db.ExecContext(ctx, query, notificationID, userID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllAsRead flips every unread notification for the user, bounded by the
// configured safety limit. Returns the number of rows flipped.
func (d *Dispatcher) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE notifications SET read = true
		WHERE id IN (
			SELECT id FROM notifications
			WHERE user_id = $1 AND read = false
			ORDER BY created_at ASC
			LIMIT $2
		)`

	res, err := d.db.ExecContext(ctx, query, userID, d.markAllLimit)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return int(affected), nil
}
