package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/stressless/internal/domain"
)

// NotificationRepository handles collaborator-facing notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, collaborator_id, test_id, message, read, created_at`

// ListForCollaborator returns a collaborator's notifications, newest first.
// When unreadOnly is set, read ones are filtered out.
func (r *NotificationRepository) ListForCollaborator(ctx context.Context, collaboratorID int64, unreadOnly bool) ([]domain.Notification, error) {
	var notifs []domain.Notification
	err := r.db.SelectContext(ctx, &notifs,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE collaborator_id = $1 AND ($2 = FALSE OR NOT read)
		 ORDER BY created_at DESC, id DESC`,
		collaboratorID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications for collaborator %d: %w", collaboratorID, err)
	}
	return notifs, nil
}

// MarkRead acknowledges one notification owned by the collaborator.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, collaboratorID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND collaborator_id = $2`,
		id, collaboratorID)
	if err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
