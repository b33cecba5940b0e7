package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/estatehub/internal/delivery"
	"github.com/nao1215/estatehub/internal/store/sqlite"
	"github.com/nao1215/estatehub/pkg/event"
)

// fakeChannel はテスト用の配信チャネル。
type fakeChannel struct {
	name  string
	id    string
	err   error
	delay time.Duration
	mu    sync.Mutex
	calls int
}

func (f *fakeChannel) Name() string     { return f.name }
func (f *fakeChannel) Configured() bool { return true }

func (f *fakeChannel) Send(_ context.Context, _ delivery.Message) (delivery.Receipt, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return delivery.Receipt{}, f.err
	}
	return delivery.Receipt{MessageID: f.id}, nil
}

func (f *fakeChannel) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func failing(name string) *fakeChannel {
	return &fakeChannel{name: name, err: errors.New(name + " unavailable")}
}

func succeeding(name, id string) *fakeChannel {
	return &fakeChannel{name: name, id: id}
}

// recordingPublisher は書き込まれたイベントを記録するPublisher。
type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev *event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []*event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*event.Event(nil), p.events...)
}

// openTestStore はインメモリSQLiteのストアを開くヘルパー関数。
func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("sqlite.Open()でエラーが発生: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// newTestService はチャネルを指定してServiceを組み立てるヘルパー関数。
func newTestService(t *testing.T, channels ...delivery.Channel) (*Service, *sqlite.Store, *recordingPublisher) {
	t.Helper()

	st := openTestStore(t)
	pub := &recordingPublisher{}
	svc := NewService(st, delivery.NewChain(channels, nil), WithPublisher(pub), WithSiteURL("https://estatehub.example.com"))
	return svc, st, pub
}
