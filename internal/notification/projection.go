package notification

import (
	"context"
	"fmt"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/pkg/event"
)

// ReadModelStore は受信者解決に使うディレクトリの読み取りモデル。
type ReadModelStore interface {
	UpsertUser(ctx context.Context, u model.User) error
	DeleteUser(ctx context.Context, id string) error
	UpsertProvider(ctx context.Context, p model.ServiceProvider) error
	DeleteProvider(ctx context.Context, id string) error
	UpsertChat(ctx context.Context, c model.Chat) error
	DeleteChat(ctx context.Context, id string) error
	UpsertSupportChat(ctx context.Context, c model.SupportChat) error
	DeleteSupportChat(ctx context.Context, id string) error
}

// DirectoryProjector はusers / serviceProviders / chats / supportChatsの変更を
// ローカルの読み取りモデルに反映する。
type DirectoryProjector struct {
	store ReadModelStore
}

// NewDirectoryProjector は新しいDirectoryProjectorを生成する。
func NewDirectoryProjector(store ReadModelStore) *DirectoryProjector {
	return &DirectoryProjector{store: store}
}

// Handles は反映対象のコレクションかどうかを返す。
func (p *DirectoryProjector) Handles(collection event.Collection) bool {
	switch collection {
	case event.CollectionUsers, event.CollectionServiceProviders, event.CollectionChats, event.CollectionSupportChats:
		return true
	default:
		return false
	}
}

// Apply はイベントを読み取りモデルに反映する。削除イベントはレコードを削除する。
func (p *DirectoryProjector) Apply(ctx context.Context, ev *event.Event) error {
	switch ev.Collection {
	case event.CollectionUsers:
		if ev.Kind == event.KindDeleted {
			return p.store.DeleteUser(ctx, ev.DocumentID)
		}
		u, err := event.DecodeAfter[model.User](ev)
		if err != nil {
			return err
		}
		u.ID = ev.DocumentID
		return p.store.UpsertUser(ctx, *u)
	case event.CollectionServiceProviders:
		if ev.Kind == event.KindDeleted {
			return p.store.DeleteProvider(ctx, ev.DocumentID)
		}
		sp, err := event.DecodeAfter[model.ServiceProvider](ev)
		if err != nil {
			return err
		}
		sp.ID = ev.DocumentID
		return p.store.UpsertProvider(ctx, sp.Normalize())
	case event.CollectionChats:
		if ev.Kind == event.KindDeleted {
			return p.store.DeleteChat(ctx, ev.DocumentID)
		}
		c, err := event.DecodeAfter[model.Chat](ev)
		if err != nil {
			return err
		}
		c.ID = ev.DocumentID
		return p.store.UpsertChat(ctx, *c)
	case event.CollectionSupportChats:
		if ev.Kind == event.KindDeleted {
			return p.store.DeleteSupportChat(ctx, ev.DocumentID)
		}
		c, err := event.DecodeAfter[model.SupportChat](ev)
		if err != nil {
			return err
		}
		c.ID = ev.DocumentID
		return p.store.UpsertSupportChat(ctx, *c)
	default:
		return fmt.Errorf("反映対象外のコレクションです: %s", ev.Collection)
	}
}
