package sqlite

import (
	"context"
	"fmt"

	"github.com/nao1215/estatehub/internal/model"
)

// CreateNotification は通知を1件保存する。
func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, title, message, category, is_read, link, created_at)
		VALUES (:id, :recipient_id, :title, :message, :category, :is_read, :link, :created_at)
	`, n)
	if err != nil {
		return fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return nil
}

// GetNotification はIDで通知を取得する。
func (s *Store) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	if err := s.db.GetContext(ctx, &n, `SELECT * FROM notifications WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "通知", id)
	}
	return &n, nil
}

// ListNotifications は受信者の通知を新しい順に最大limit件返す。
func (s *Store) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	query := `SELECT * FROM notifications WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`

	notifications := []model.Notification{}
	if err := s.db.SelectContext(ctx, &notifications, query, recipientID, limit); err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	return notifications, nil
}

// CountUnread は受信者の未読通知数を返す。
func (s *Store) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID); err != nil {
		return 0, fmt.Errorf("未読数の取得に失敗: %w", err)
	}
	return count, nil
}

// MarkRead は通知を既読にする。
func (s *Store) MarkRead(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("通知の既読化に失敗: %w", err)
	}
	return nil
}

// MarkAllRead は受信者の未読通知をすべて既読にし、更新件数を返す。
func (s *Store) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("全通知の既読化に失敗: %w", err)
	}
	return res.RowsAffected()
}
