package eventstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nao1215/estatehub/pkg/event"
	"github.com/nao1215/estatehub/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

// maxLimit は1回の取得で返す最大イベント数。
const maxLimit = 1000

// Store はSQLiteに変更イベントを追記する。
type Store struct {
	db *sqlx.DB
}

// OpenStore はdsnのSQLiteを開き、マイグレーションを適用する。
func OpenStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
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

// eventRow はeventsテーブルの行。
type eventRow struct {
	Seq          int64          `db:"seq"`
	ID           string         `db:"id"`
	Kind         string         `db:"kind"`
	Collection   string         `db:"collection"`
	DocumentID   string         `db:"document_id"`
	DocumentPath string         `db:"document_path"`
	Before       sql.NullString `db:"before_json"`
	After        sql.NullString `db:"after_json"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r eventRow) toEvent() *event.Event {
	ev := &event.Event{
		ID:           r.ID,
		Seq:          r.Seq,
		Kind:         event.Kind(r.Kind),
		Collection:   event.Collection(r.Collection),
		DocumentID:   r.DocumentID,
		DocumentPath: r.DocumentPath,
		CreatedAt:    r.CreatedAt,
	}
	if r.Before.Valid {
		ev.Before = json.RawMessage(r.Before.String)
	}
	if r.After.Valid {
		ev.After = json.RawMessage(r.After.String)
	}
	return ev
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// Append はイベントを追記し、seqを採番したイベントを返す。
// 同じIDのイベントが既にある場合は追記せず、既存のイベントを返す。
func (s *Store) Append(ctx context.Context, ev *event.Event) (*event.Event, bool, error) {
	collection, documentID, err := event.ParsePath(ev.DocumentPath)
	if err != nil {
		return nil, false, err
	}
	ev.Collection, ev.DocumentID = collection, documentID
	ev.DocumentPath = strings.Trim(ev.DocumentPath, "/")
	if err := ev.Validate(); err != nil {
		return nil, false, err
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, kind, collection, document_id, document_path, before_json, after_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.ID, ev.Kind, ev.Collection, ev.DocumentID, ev.DocumentPath, nullJSON(ev.Before), nullJSON(ev.After), ev.CreatedAt.UTC())
	if err != nil {
		return nil, false, fmt.Errorf("イベントの追記に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}

	stored, err := s.Get(ctx, ev.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

// ErrEventNotFound はイベントが存在しないことを表す。
var ErrEventNotFound = errors.New("イベントが見つかりません")

// Get はIDでイベントを取得する。
func (s *Store) Get(ctx context.Context, id string) (*event.Event, error) {
	var row eventRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM events WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("イベント %s: %w", id, ErrEventNotFound)
		}
		return nil, fmt.Errorf("イベント %s の取得に失敗: %w", id, err)
	}
	return row.toEvent(), nil
}

// ListSince はseqがafterより大きいイベントをseqの昇順で最大limit件返す。
func (s *Store) ListSince(ctx context.Context, after int64, limit int) ([]*event.Event, error) {
	return s.list(ctx, `SELECT * FROM events WHERE seq > ? ORDER BY seq LIMIT ?`, after, clampLimit(limit))
}

// ListByCollection はコレクションのイベントをseqの昇順で最大limit件返す。
func (s *Store) ListByCollection(ctx context.Context, collection event.Collection, after int64, limit int) ([]*event.Event, error) {
	return s.list(ctx, `SELECT * FROM events WHERE collection = ? AND seq > ? ORDER BY seq LIMIT ?`, collection, after, clampLimit(limit))
}

// ListByDocument はドキュメントパスのイベントをseqの昇順で返す。
func (s *Store) ListByDocument(ctx context.Context, documentPath string) ([]*event.Event, error) {
	return s.list(ctx, `SELECT * FROM events WHERE document_path = ? ORDER BY seq LIMIT ?`, documentPath, maxLimit)
}

// LatestSeq は最後に採番したseqを返す。イベントがなければ0を返す。
func (s *Store) LatestSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM events`); err != nil {
		return 0, fmt.Errorf("最新seqの取得に失敗: %w", err)
	}
	return seq, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*event.Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	events := make([]*event.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toEvent())
	}
	return events, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return maxLimit
	}
	return limit
}
