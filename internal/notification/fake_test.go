package notification

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/internal/store"
	"github.com/nao1215/estatehub/pkg/event"
)

// fakeStore はハンドラーのテストに使うインメモリのストア。
type fakeStore struct {
	mu            sync.Mutex
	notifications []model.Notification
	users         map[string]model.User
	providers     map[string]model.ServiceProvider
	chats         map[string]model.Chat
	supportChats  map[string]model.SupportChat
	// failFor に含まれる受信者への書き込みは失敗する。
	failFor map[string]bool
	// panicFor に含まれる受信者への書き込みはパニックする。
	panicFor  map[string]bool
	adminsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[string]model.User),
		providers:    make(map[string]model.ServiceProvider),
		chats:        make(map[string]model.Chat),
		supportChats: make(map[string]model.SupportChat),
		failFor:      make(map[string]bool),
		panicFor:     make(map[string]bool),
	}
}

func (s *fakeStore) addUser(u model.User) *fakeStore {
	s.users[u.ID] = u
	return s
}

func (s *fakeStore) addProvider(p model.ServiceProvider) *fakeStore {
	s.providers[p.ID] = p.Normalize()
	return s
}

func (s *fakeStore) CreateNotification(_ context.Context, n *model.Notification) error {
	if s.panicFor[n.RecipientID] {
		panic("store exploded")
	}
	if s.failFor[n.RecipientID] {
		return fmt.Errorf("write %s: %w", n.RecipientID, errors.New("disk full"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, id string) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *fakeStore) ListAdminIDs(_ context.Context) ([]string, error) {
	if s.adminsErr != nil {
		return nil, s.adminsErr
	}
	var ids []string
	for _, u := range s.users {
		if u.Role == model.RoleAdmin {
			ids = append(ids, u.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *fakeStore) GetProvider(_ context.Context, id string) (*model.ServiceProvider, error) {
	p, ok := s.providers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *fakeStore) ListApprovedProviders(_ context.Context, serviceType model.ServiceType) ([]model.ServiceProvider, error) {
	var out []model.ServiceProvider
	for _, p := range s.providers {
		if p.IsApproved && p.ServiceType == serviceType {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) GetChat(_ context.Context, id string) (*model.Chat, error) {
	c, ok := s.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *fakeStore) GetSupportChat(_ context.Context, id string) (*model.SupportChat, error) {
	c, ok := s.supportChats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

// written は書き込まれた通知を返す。
func (s *fakeStore) written() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notifications)
}

// writtenTo は受信者ごとの通知を返す。
func (s *fakeStore) writtenTo(recipientID string) []model.Notification {
	var out []model.Notification
	for _, n := range s.written() {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

// fakeSubscriptions は購読作成イベントの処理を記録する。
type fakeSubscriptions struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeSubscriptions) HandleCreated(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return f.err
}

// newTestHandlers はfakeStoreを使うHandlersを組み立てるヘルパー関数。
func newTestHandlers(st *fakeStore, subs SubscriptionHandler) *Handlers {
	return NewHandlers(NewResolver(st, st), NewWriter(st, nil), st, subs)
}

// mustEvent はテスト用の変更イベントを生成するヘルパー関数。
func mustEvent(t *testing.T, kind event.Kind, path string, before, after any) *event.Event {
	t.Helper()

	ev, err := event.New(kind, path, before, after)
	if err != nil {
		t.Fatalf("event.New(%s, %q)でエラーが発生: %v", kind, path, err)
	}
	return ev
}

// seedDirectory は管理者2名と一般ユーザーを登録したfakeStoreを返す。
func seedDirectory() *fakeStore {
	return newFakeStore().
		addUser(model.User{ID: "admin-1", Role: model.RoleAdmin, Name: "Alice"}).
		addUser(model.User{ID: "admin-2", Role: model.RoleAdmin, Name: "Bob"}).
		addUser(model.User{ID: "client-1", Role: model.RoleClient, DisplayName: "Hana"}).
		addUser(model.User{ID: "pro-user-1", Role: model.RoleProvider, Email: "kenji@example.com"})
}

func ptr[T any](v T) *T {
	return &v
}
