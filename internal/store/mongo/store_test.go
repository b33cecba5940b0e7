package mongo

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/internal/store"
)

// TestServiceTypeVariants はサービス種別の表記揺れの列挙を検証する。
func TestServiceTypeVariants(t *testing.T) {
	t.Parallel()

	got := serviceTypeVariants("Construction")
	for _, want := range []string{"construction", "Construction", "CONSTRUCTION"} {
		if !slices.Contains(got, want) {
			t.Errorf("serviceTypeVariants() = %v, %q を含まない", got, want)
		}
	}
	if got := serviceTypeVariants(""); len(got) != 1 || got[0] != "" {
		t.Errorf("serviceTypeVariants(\"\") = %v, want [\"\"]", got)
	}
}

// openTestStore はMONGO_URIのMongoDBに使い捨てのデータベースで接続する。
// MONGO_URIが未設定ならスキップする。
func openTestStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URIが未設定のためスキップ")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, uri, "estatehub_test_"+uuid.NewString()[:8])
	if err != nil {
		t.Fatalf("Open()でエラーが発生: %v", err)
	}
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close()
	})
	return s
}

// TestStoreWithMongo は実際のMongoDBでストアの主要操作を検証する。
func TestStoreWithMongo(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	t.Run("表記揺れのある承認済み事業者がすべて取得できること", func(t *testing.T) {
		docs := []any{
			model.ServiceProvider{ID: "p1", UserID: "u1", ServiceType: "construction", IsApproved: true},
			model.ServiceProvider{ID: "p2", UserID: "u2", ServiceType: "Construction", IsApproved: true},
			model.ServiceProvider{ID: "p3", UserID: "u3", ServiceType: "construction", IsApproved: false},
			model.ServiceProvider{ID: "p4", UserID: "u4", ServiceType: "renovation", IsApproved: true},
		}
		if _, err := s.db.Collection(collProviders).InsertMany(ctx, docs); err != nil {
			t.Fatalf("事業者の投入に失敗: %v", err)
		}

		providers, err := s.ListApprovedProviders(ctx, model.ServiceConstruction)
		if err != nil {
			t.Fatalf("ListApprovedProviders()でエラーが発生: %v", err)
		}
		if len(providers) != 2 {
			t.Fatalf("len(providers) = %d, want 2", len(providers))
		}
		for _, p := range providers {
			if p.ServiceType != model.ServiceConstruction {
				t.Errorf("ServiceType = %q, want 小文字", p.ServiceType)
			}
		}
	})

	t.Run("購読の担当は一度だけ設定できること", func(t *testing.T) {
		now := time.Now().UTC()
		sub := &model.EmailSubscription{ID: "sub-1", Email: "a@example.com", Status: model.StatusPending, CreatedAt: now, UpdatedAt: now}
		if err := s.CreateSubscription(ctx, sub); err != nil {
			t.Fatalf("CreateSubscription()でエラーが発生: %v", err)
		}

		first, err := s.ClaimSubscription(ctx, "sub-1", model.ClaimedByTrigger, now)
		if err != nil || !first {
			t.Fatalf("1回目のClaimSubscription() = (%v, %v), want (true, nil)", first, err)
		}
		second, err := s.ClaimSubscription(ctx, "sub-1", model.ClaimedByTrigger, now)
		if err != nil || second {
			t.Fatalf("2回目のClaimSubscription() = (%v, %v), want (false, nil)", second, err)
		}
	})

	t.Run("存在しない購読はErrNotFoundになること", func(t *testing.T) {
		if _, err := s.GetSubscription(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}
