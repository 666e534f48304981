package store

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
)

// InsertNotification stores n and assigns its id.
func (s *Store) InsertNotification(ctx context.Context, n *model.Notification) error {
	result, err := s.insertNotification.ExecContext(ctx, n)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.Id = id
	return nil
}

// Notifications returns the newest notifications of a user.
func (s *Store) Notifications(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	var notifications []model.Notification
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT *
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	return notifications, nil
}

// UnreadCount returns the number of unread notifications of a user.
func (s *Store) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead sets the read timestamp of one notification. Marking an already read notification
// keeps its original timestamp.
func (s *Store) MarkRead(ctx context.Context, userID, id int64, at time.Time) error {
	var n int
	if err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM notifications WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return fmt.Errorf("look up notification: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = ? WHERE id = ? AND user_id = ? AND read_at IS NULL`,
		at, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread notification of a user as read.
func (s *Store) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`, at, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

// DeleteNotification removes one notification of a user.
func (s *Store) DeleteNotification(ctx context.Context, userID, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRead removes all read notifications of a user.
func (s *Store) DeleteRead(ctx context.Context, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE user_id = ? AND read_at IS NOT NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	return result.RowsAffected()
}
