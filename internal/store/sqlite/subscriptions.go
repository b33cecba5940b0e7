package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/internal/store"
)

// FindActiveByEmail は正規化済みメールアドレスの有効な購読を返す。
func (s *Store) FindActiveByEmail(ctx context.Context, email string) (*model.EmailSubscription, error) {
	var sub model.EmailSubscription
	err := s.db.GetContext(ctx, &sub,
		`SELECT * FROM email_subscriptions WHERE email = ? AND status = ? LIMIT 1`,
		email, model.StatusActive)
	if err != nil {
		return nil, notFound(err, "購読", email)
	}
	return &sub, nil
}

// CreateSubscription は購読レコードを保存する。
func (s *Store) CreateSubscription(ctx context.Context, sub *model.EmailSubscription) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO email_subscriptions (
			id, email, status, source, email_message_id, email_error,
			email_sent_at, email_failed_at, delivery_channel, claimed_by, created_at, updated_at
		) VALUES (
			:id, :email, :status, :source, :email_message_id, :email_error,
			:email_sent_at, :email_failed_at, :delivery_channel, :claimed_by, :created_at, :updated_at
		)
	`, sub)
	if err != nil {
		return fmt.Errorf("購読の保存に失敗: %w", err)
	}
	return nil
}

// GetSubscription はIDで購読レコードを取得する。
func (s *Store) GetSubscription(ctx context.Context, id string) (*model.EmailSubscription, error) {
	var sub model.EmailSubscription
	if err := s.db.GetContext(ctx, &sub, `SELECT * FROM email_subscriptions WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "購読", id)
	}
	return &sub, nil
}

// ClaimSubscription は未担当かつpendingの購読をclaimantの担当にする。
// 担当にできた場合にtrueを返す。条件付きUPDATEで行うため同時に1者しか成功しない。
func (s *Store) ClaimSubscription(ctx context.Context, id, claimant string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_subscriptions SET claimed_by = ?, updated_at = ?
		WHERE id = ? AND status = ? AND claimed_by = ''
	`, claimant, now, id, model.StatusPending)
	if err != nil {
		return false, fmt.Errorf("購読の担当設定に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	return n == 1, nil
}

// SaveDeliveryOutcome は配信結果を保存する。activeのレコードは変更しない。
// 更新した場合にtrueを返す。activeへの遷移は同じメールアドレスの有効な購読が他にない場合だけ行い、
// 既にある場合はstore.ErrConflictを返す。
func (s *Store) SaveDeliveryOutcome(ctx context.Context, sub *model.EmailSubscription) (bool, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE email_subscriptions SET
			status = :status,
			email_message_id = :email_message_id,
			email_error = :email_error,
			email_sent_at = :email_sent_at,
			email_failed_at = :email_failed_at,
			delivery_channel = :delivery_channel,
			updated_at = :updated_at
		WHERE id = :id AND status != 'active'
			AND (:status != 'active' OR NOT EXISTS (
				SELECT 1 FROM email_subscriptions AS other
				WHERE other.email = email_subscriptions.email
					AND other.status = 'active'
					AND other.id != email_subscriptions.id
			))
	`, sub)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("購読 %s を有効にできません: %w", sub.ID, store.ErrConflict)
		}
		return false, fmt.Errorf("配信結果の保存に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 1 || sub.Status != model.StatusActive {
		return n == 1, nil
	}

	var sibling bool
	err = s.db.GetContext(ctx, &sibling, `
		SELECT EXISTS (
			SELECT 1 FROM email_subscriptions
			WHERE email = (SELECT email FROM email_subscriptions WHERE id = ?)
				AND status = 'active' AND id != ?
		)
	`, sub.ID, sub.ID)
	if err != nil {
		return false, fmt.Errorf("有効な購読の確認に失敗: %w", err)
	}
	if sibling {
		return false, fmt.Errorf("購読 %s を有効にできません: %w", sub.ID, store.ErrConflict)
	}
	return false, nil
}

// isUniqueViolation はSQLiteの一意制約違反かどうかを返す。
func isUniqueViolation(err error) bool {
	var serr *sqlitedriver.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
