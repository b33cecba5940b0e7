// Package sqlite はSQLite（modernc.org/sqlite）上のストア実装を提供する。
//
// 通知、メール購読に加えて、ユーザー・事業者・チャットの投影（Read Model）を保持する。
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nao1215/estatehub/internal/store"
	"github.com/nao1215/estatehub/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store はSQLiteをバックエンドとするストア。
type Store struct {
	// db はSQLite接続。
	db *sqlx.DB
}

// Open はdsnのSQLiteを開き、マイグレーションを適用する。
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteは書き込みが直列化されるため接続を1本に絞る。インメモリDBでは必須。
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	if _, err := migration.Run(ctx, db, migrations, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// notFound はsql.ErrNoRowsをstore.ErrNotFoundに変換する。
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, store.ErrNotFound)
	}
	return fmt.Errorf("%s %s の取得に失敗: %w", what, id, err)
}
