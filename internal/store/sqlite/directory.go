package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nao1215/estatehub/internal/model"
)

// GetUser はIDでユーザーを取得する。
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "ユーザー", id)
	}
	return &u, nil
}

// ListAdminIDs はロールがadminのユーザーIDを返す。
func (s *Store) ListAdminIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM users WHERE role = ? ORDER BY id`, model.RoleAdmin); err != nil {
		return nil, fmt.Errorf("管理者一覧の取得に失敗: %w", err)
	}
	return ids, nil
}

// UpsertUser はユーザーを作成または更新する。
func (s *Store) UpsertUser(ctx context.Context, u model.User) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, role, name, display_name, email)
		VALUES (:id, :role, :name, :display_name, :email)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			name = excluded.name,
			display_name = excluded.display_name,
			email = excluded.email
	`, u)
	if err != nil {
		return fmt.Errorf("ユーザーの保存に失敗: %w", err)
	}
	return nil
}

// DeleteUser はユーザーを削除する。
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "users", id)
}

// GetProvider はIDで事業者を取得する。
func (s *Store) GetProvider(ctx context.Context, id string) (*model.ServiceProvider, error) {
	var p model.ServiceProvider
	if err := s.db.GetContext(ctx, &p, `SELECT * FROM service_providers WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "事業者", id)
	}
	return &p, nil
}

// ListApprovedProviders はサービス種別が一致する承認済みの事業者を返す。
// service_typeは保存時に小文字化しているため完全一致で比較する。
func (s *Store) ListApprovedProviders(ctx context.Context, serviceType model.ServiceType) ([]model.ServiceProvider, error) {
	providers := []model.ServiceProvider{}
	err := s.db.SelectContext(ctx, &providers,
		`SELECT * FROM service_providers WHERE service_type = ? AND is_approved = 1 ORDER BY id`,
		model.NormalizeServiceType(string(serviceType)))
	if err != nil {
		return nil, fmt.Errorf("事業者一覧の取得に失敗: %w", err)
	}
	return providers, nil
}

// UpsertProvider は事業者を作成または更新する。サービス種別は小文字化して保存する。
func (s *Store) UpsertProvider(ctx context.Context, p model.ServiceProvider) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO service_providers (id, user_id, service_type, is_approved, business_name)
		VALUES (:id, :user_id, :service_type, :is_approved, :business_name)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			service_type = excluded.service_type,
			is_approved = excluded.is_approved,
			business_name = excluded.business_name
	`, p.Normalize())
	if err != nil {
		return fmt.Errorf("事業者の保存に失敗: %w", err)
	}
	return nil
}

// DeleteProvider は事業者を削除する。
func (s *Store) DeleteProvider(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "service_providers", id)
}

// chatRow はchatsテーブルの行。
type chatRow struct {
	ID           string         `db:"id"`
	Participants sql.NullString `db:"participants"`
}

// GetChat はIDでチャットを取得する。参加者リストがない場合Participantsはnilになる。
func (s *Store) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	var row chatRow
	if err := s.db.GetContext(ctx, &row, `SELECT id, participants FROM chats WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "チャット", id)
	}

	chat := &model.Chat{ID: row.ID}
	if row.Participants.Valid {
		if err := json.Unmarshal([]byte(row.Participants.String), &chat.Participants); err != nil {
			return nil, fmt.Errorf("参加者リストのデシリアライズに失敗: %w", err)
		}
	}
	return chat, nil
}

// UpsertChat はチャットを作成または更新する。
func (s *Store) UpsertChat(ctx context.Context, c model.Chat) error {
	var participants sql.NullString
	if c.Participants != nil {
		b, err := json.Marshal(c.Participants)
		if err != nil {
			return fmt.Errorf("参加者リストのシリアライズに失敗: %w", err)
		}
		participants = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, participants) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET participants = excluded.participants
	`, c.ID, participants)
	if err != nil {
		return fmt.Errorf("チャットの保存に失敗: %w", err)
	}
	return nil
}

// DeleteChat はチャットを削除する。
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "chats", id)
}

// GetSupportChat はIDでサポートチャットを取得する。
func (s *Store) GetSupportChat(ctx context.Context, id string) (*model.SupportChat, error) {
	var c model.SupportChat
	if err := s.db.GetContext(ctx, &c, `SELECT * FROM support_chats WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "サポートチャット", id)
	}
	return &c, nil
}

// UpsertSupportChat はサポートチャットを作成または更新する。
func (s *Store) UpsertSupportChat(ctx context.Context, c model.SupportChat) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO support_chats (id, user_id, assigned_admin_id)
		VALUES (:id, :user_id, :assigned_admin_id)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			assigned_admin_id = excluded.assigned_admin_id
	`, c)
	if err != nil {
		return fmt.Errorf("サポートチャットの保存に失敗: %w", err)
	}
	return nil
}

// DeleteSupportChat はサポートチャットを削除する。
func (s *Store) DeleteSupportChat(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "support_chats", id)
}

// deleteByID は投影テーブルから1行削除する。tableは内部の定数のみを渡すこと。
func (s *Store) deleteByID(ctx context.Context, table, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("%s の削除に失敗: %w", table, err)
	}
	return nil
}
