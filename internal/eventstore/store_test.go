package eventstore

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/estatehub/pkg/event"
)

// setupTestStore はインメモリSQLiteのStoreを生成するヘルパー関数。
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := OpenStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenStore()でエラーが発生: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// newTestEvent はテスト用の作成イベントを生成するヘルパー関数。
func newTestEvent(t *testing.T, path string) *event.Event {
	t.Helper()

	ev, err := event.New(event.KindCreated, path, nil, map[string]any{"status": "Pending"})
	if err != nil {
		t.Fatalf("event.New()でエラーが発生: %v", err)
	}
	return ev
}

func TestStore_Append(t *testing.T) {
	t.Parallel()

	t.Run("seqが追記順に採番されること", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ctx := context.Background()

		for i, path := range []string{"listings/l-1", "reviews/r-1", "chats/c-1/messages/m-1"} {
			stored, created, err := s.Append(ctx, newTestEvent(t, path))
			if err != nil {
				t.Fatalf("Append(%q)でエラーが発生: %v", path, err)
			}
			if !created {
				t.Errorf("Append(%q): created = false, want true", path)
			}
			if stored.Seq != int64(i+1) {
				t.Errorf("Append(%q): Seq = %d, want %d", path, stored.Seq, i+1)
			}
		}

		latest, err := s.LatestSeq(ctx)
		if err != nil {
			t.Fatalf("LatestSeq()でエラーが発生: %v", err)
		}
		if latest != 3 {
			t.Errorf("LatestSeq() = %d, want 3", latest)
		}
	})

	t.Run("同じIDのイベントは追記されないこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ctx := context.Background()
		ev := newTestEvent(t, "listings/l-1")

		first, _, err := s.Append(ctx, ev)
		if err != nil {
			t.Fatalf("1回目のAppend()でエラーが発生: %v", err)
		}
		second, created, err := s.Append(ctx, ev)
		if err != nil {
			t.Fatalf("2回目のAppend()でエラーが発生: %v", err)
		}
		if created {
			t.Error("2回目のAppend(): created = true, want false")
		}
		if second.Seq != first.Seq {
			t.Errorf("2回目のSeq = %d, want %d", second.Seq, first.Seq)
		}
	})

	t.Run("サブコレクションのパスからコレクションとIDが設定されること", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ev := newTestEvent(t, "supportChats/sc-1/messages/m-1")
		ev.Collection, ev.DocumentID = "", ""

		stored, _, err := s.Append(context.Background(), ev)
		if err != nil {
			t.Fatalf("Append()でエラーが発生: %v", err)
		}
		if stored.Collection != event.CollectionSupportChatMessages {
			t.Errorf("Collection = %q, want %q", stored.Collection, event.CollectionSupportChatMessages)
		}
		if stored.DocumentID != "m-1" {
			t.Errorf("DocumentID = %q, want %q", stored.DocumentID, "m-1")
		}
		if string(stored.After) != `{"status":"Pending"}` {
			t.Errorf("After = %s", stored.After)
		}
		if stored.Before != nil {
			t.Errorf("Before = %s, want nil", stored.Before)
		}
	})

	t.Run("IDが空の場合は採番されること", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ev := newTestEvent(t, "listings/l-1")
		ev.ID = ""

		stored, _, err := s.Append(context.Background(), ev)
		if err != nil {
			t.Fatalf("Append()でエラーが発生: %v", err)
		}
		if stored.ID == "" {
			t.Error("IDが採番されていない")
		}
	})

	t.Run("不正なパスはエラーになること", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ev := newTestEvent(t, "listings/l-1")
		ev.DocumentPath = "listings"

		_, _, err := s.Append(context.Background(), ev)
		if !errors.Is(err, event.ErrInvalidPath) {
			t.Errorf("Append()のエラー = %v, want ErrInvalidPath", err)
		}
	})

	t.Run("更新イベントにbeforeがない場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		s := setupTestStore(t)
		ev := newTestEvent(t, "listings/l-1")
		ev.Kind = event.KindUpdated

		_, _, err := s.Append(context.Background(), ev)
		if !errors.Is(err, event.ErrMissingSnapshot) {
			t.Errorf("Append()のエラー = %v, want ErrMissingSnapshot", err)
		}
	})
}

func TestStore_List(t *testing.T) {
	t.Parallel()

	s := setupTestStore(t)
	ctx := context.Background()
	for _, path := range []string{"listings/l-1", "reviews/r-1", "listings/l-2", "listings/l-1"} {
		if _, _, err := s.Append(ctx, newTestEvent(t, path)); err != nil {
			t.Fatalf("Append(%q)でエラーが発生: %v", path, err)
		}
	}

	t.Run("ListSinceがafterより後のイベントを昇順で返すこと", func(t *testing.T) {
		t.Parallel()

		events, err := s.ListSince(ctx, 1, 2)
		if err != nil {
			t.Fatalf("ListSince()でエラーが発生: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("件数 = %d, want 2", len(events))
		}
		if events[0].Seq != 2 || events[1].Seq != 3 {
			t.Errorf("Seq = [%d %d], want [2 3]", events[0].Seq, events[1].Seq)
		}
	})

	t.Run("ListByCollectionがコレクションで絞り込むこと", func(t *testing.T) {
		t.Parallel()

		events, err := s.ListByCollection(ctx, event.CollectionListings, 0, 0)
		if err != nil {
			t.Fatalf("ListByCollection()でエラーが発生: %v", err)
		}
		if len(events) != 3 {
			t.Errorf("件数 = %d, want 3", len(events))
		}
	})

	t.Run("ListByDocumentがドキュメントで絞り込むこと", func(t *testing.T) {
		t.Parallel()

		events, err := s.ListByDocument(ctx, "listings/l-1")
		if err != nil {
			t.Fatalf("ListByDocument()でエラーが発生: %v", err)
		}
		if len(events) != 2 {
			t.Errorf("件数 = %d, want 2", len(events))
		}
	})

	t.Run("存在しないIDはErrEventNotFoundになること", func(t *testing.T) {
		t.Parallel()

		_, err := s.Get(ctx, "missing")
		if !errors.Is(err, ErrEventNotFound) {
			t.Errorf("Get()のエラー = %v, want ErrEventNotFound", err)
		}
	})
}
