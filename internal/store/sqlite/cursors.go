package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoadCursor は名前付きの読み取り位置を返す。保存されていない場合は0を返す。
func (s *Store) LoadCursor(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := s.db.GetContext(ctx, &seq, `SELECT seq FROM consumer_cursors WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("読み取り位置 %s の取得に失敗: %w", name, err)
	}
	return seq, nil
}

// SaveCursor は名前付きの読み取り位置を保存する。
func (s *Store) SaveCursor(ctx context.Context, name string, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consumer_cursors (name, seq, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET seq = excluded.seq, updated_at = excluded.updated_at
	`, name, seq, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("読み取り位置 %s の保存に失敗: %w", name, err)
	}
	return nil
}
