package notification

import (
	"context"

	"github.com/nao1215/estatehub/internal/model"
)

// NotificationStore は通知の書き込み先。
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// InboxStore は受信箱APIが使う通知ストア。
type InboxStore interface {
	NotificationStore
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// Directory はユーザーディレクトリ。
type Directory interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListAdminIDs(ctx context.Context) ([]string, error)
}

// ProviderStore はサービス事業者の参照先。
type ProviderStore interface {
	GetProvider(ctx context.Context, id string) (*model.ServiceProvider, error)
	ListApprovedProviders(ctx context.Context, serviceType model.ServiceType) ([]model.ServiceProvider, error)
}

// ChatStore はチャットとサポートチャットの参照先。
type ChatStore interface {
	GetChat(ctx context.Context, id string) (*model.Chat, error)
	GetSupportChat(ctx context.Context, id string) (*model.SupportChat, error)
}

// SubscriptionHandler はメール購読の作成イベントを処理する非同期の入口。
type SubscriptionHandler interface {
	HandleCreated(ctx context.Context, subscriptionID string) error
}
