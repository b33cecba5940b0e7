// Package backend は設定に応じてSQLiteまたはMongoDBのストアを開く。
package backend

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/internal/store/mongo"
	"github.com/nao1215/estatehub/internal/store/sqlite"
	"github.com/nao1215/estatehub/pkg/config"
)

// Backend はサービスが使うストアの操作をまとめたもの。
type Backend interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)

	GetUser(ctx context.Context, id string) (*model.User, error)
	ListAdminIDs(ctx context.Context) ([]string, error)
	GetProvider(ctx context.Context, id string) (*model.ServiceProvider, error)
	ListApprovedProviders(ctx context.Context, serviceType model.ServiceType) ([]model.ServiceProvider, error)
	GetChat(ctx context.Context, id string) (*model.Chat, error)
	GetSupportChat(ctx context.Context, id string) (*model.SupportChat, error)

	FindActiveByEmail(ctx context.Context, email string) (*model.EmailSubscription, error)
	CreateSubscription(ctx context.Context, sub *model.EmailSubscription) error
	GetSubscription(ctx context.Context, id string) (*model.EmailSubscription, error)
	ClaimSubscription(ctx context.Context, id, claimant string, now time.Time) (bool, error)
	SaveDeliveryOutcome(ctx context.Context, sub *model.EmailSubscription) (bool, error)

	LoadCursor(ctx context.Context, name string) (int64, error)
	SaveCursor(ctx context.Context, name string, seq int64) error

	Close() error
}

var (
	_ Backend = (*sqlite.Store)(nil)
	_ Backend = (*mongo.Store)(nil)
)

// Open は設定されたバックエンドのストアを開く。
func Open(ctx context.Context, cfg config.Store) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case config.BackendMongo:
		s, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("MongoDBストアのオープンに失敗: %w", err)
		}
		log.Printf("[Store] MongoDBストアを使用します (database=%s)", cfg.MongoDatabase)
		return s, nil
	default:
		s, err := sqlite.Open(ctx, cfg.SQLiteDSN())
		if err != nil {
			return nil, fmt.Errorf("SQLiteストアのオープンに失敗: %w", err)
		}
		log.Printf("[Store] SQLiteストアを使用します (path=%s)", cfg.SQLitePath)
		return s, nil
	}
}
