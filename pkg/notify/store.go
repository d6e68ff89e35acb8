package notify

import (
	"context"
	"fmt"

	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/storage/postgres"
)

// Store provides notification persistence. It accepts a DBTX so the
// request workflow and the role transition service can append
// notifications atomically with their own mutations.
type Store struct {
	db postgres.DBTX
}

// NewStore creates a notification store.
func NewStore(db postgres.DBTX) *Store {
	return &Store{db: db}
}

// Append inserts a notification. It only fails on storage
// unavailability, which the caller may retry.
func (s *Store) Append(ctx context.Context, actorID int64, typ Type, title, message string, relatedPermission *string) error {
	query := `
		INSERT INTO notifications (actor_id, type, title, message, related_permission)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.ExecContext(ctx, query, actorID, typ, title, message, relatedPermission); err != nil {
		return governance.Storagef("append notification", err)
	}
	return nil
}

// MarkRead flips is_read for one of the actor's notifications. Another
// actor's notification reads as not found so IDs cannot be probed.
func (s *Store) MarkRead(ctx context.Context, actorID, notificationID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND actor_id = $2`,
		notificationID, actorID)
	if err != nil {
		return governance.Storagef("mark notification read", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return governance.Storagef("mark notification read", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification %d: %w", notificationID, governance.ErrNotFound)
	}
	return nil
}

// MarkAllRead flips is_read for every unread notification of the actor.
func (s *Store) MarkAllRead(ctx context.Context, actorID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE actor_id = $1 AND NOT is_read`, actorID)
	if err != nil {
		return governance.Storagef("mark all notifications read", err)
	}
	return nil
}

// UnreadCount returns the number of unread notifications for the actor.
func (s *Store) UnreadCount(ctx context.Context, actorID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE actor_id = $1 AND NOT is_read`, actorID,
	).Scan(&count)
	if err != nil {
		return 0, governance.Storagef("count unread notifications", err)
	}
	return count, nil
}

// ListByActor returns the actor's notifications, newest first.
func (s *Store) ListByActor(ctx context.Context, actorID int64, limit int) ([]*Notification, error) {
	query := `
		SELECT id, actor_id, type, title, message, related_permission, is_read, created_at
		FROM notifications
		WHERE actor_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{actorID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, governance.Storagef("list notifications", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(
			&n.ID, &n.ActorID, &n.Type, &n.Title, &n.Message,
			&n.RelatedPermission, &n.IsRead, &n.CreatedAt,
		); err != nil {
			return nil, governance.Storagef("scan notification", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, governance.Storagef("list notifications", err)
	}
	return notifications, nil
}
