package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/pkg/event"
)

func TestHandlers_ListingCreated(t *testing.T) {
	t.Parallel()

	t.Run("管理者全員と掲載者に通知すること", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory()
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "listings/l-1", nil, model.ListingDoc{OwnerID: "client-1", Title: "Sea view"})

		rep := h.ListingCreated(context.Background(), ev)
		if rep.Written() != 3 {
			t.Fatalf("Written() = %d, want 3 (%s)", rep.Written(), rep)
		}
		for _, admin := range []string{"admin-1", "admin-2"} {
			got := st.writtenTo(admin)
			if len(got) != 1 || got[0].Category != model.CategoryAdmin {
				t.Errorf("%s宛ての通知 = %+v", admin, got)
			}
		}
		got := st.writtenTo("client-1")
		if len(got) != 1 {
			t.Fatalf("掲載者宛ての通知 = %d件, want 1件", len(got))
		}
		want := `Your listing "Sea view" has been submitted and is pending approval.`
		if got[0].Message != want {
			t.Errorf("Message = %q, want %q", got[0].Message, want)
		}
		if got[0].Read {
			t.Error("新しい通知が既読になっている")
		}
	})

	t.Run("タイトルがなくても余分な空白が残らないこと", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory()
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "listings/l-1", nil, model.ListingDoc{UserID: "client-1"})

		h.ListingCreated(context.Background(), ev)
		got := st.writtenTo("client-1")
		if len(got) != 1 {
			t.Fatalf("掲載者宛ての通知 = %d件, want 1件", len(got))
		}
		if want := "Your listing has been submitted and is pending approval."; got[0].Message != want {
			t.Errorf("Message = %q, want %q", got[0].Message, want)
		}
	})

	t.Run("管理者の取得に失敗しても掲載者には通知すること", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory()
		st.adminsErr = errors.New("directory unavailable")
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "listings/l-1", nil, model.ListingDoc{OwnerID: "client-1"})

		rep := h.ListingCreated(context.Background(), ev)
		if rep.Written() != 1 {
			t.Errorf("Written() = %d, want 1", rep.Written())
		}
		if rep.Steps[0].Err == nil {
			t.Error("管理者の解決失敗がStepに記録されていない")
		}
		if rep.Err != nil {
			t.Errorf("Err = %v, want nil", rep.Err)
		}
	})
}

func TestHandlers_ServiceRequestCreated(t *testing.T) {
	t.Parallel()

	t.Run("指名された事業者と依頼者に通知し予算を載せること", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory().addProvider(model.ServiceProvider{ID: "p-1", UserID: "pro-user-1", ServiceType: "construction", IsApproved: true})
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "constructionRequests/r-1", nil,
			model.ServiceRequestDoc{ClientID: "client-1", ProviderID: "p-1", Title: "Kitchen", Budget: ptr(12500.0)})

		rep := h.ServiceRequestCreated(context.Background(), ev)
		if rep.Written() != 2 {
			t.Fatalf("Written() = %d, want 2 (%s)", rep.Written(), rep)
		}
		pro := st.writtenTo("pro-user-1")
		if len(pro) != 1 {
			t.Fatalf("事業者宛ての通知 = %d件, want 1件", len(pro))
		}
		if pro[0].Title != "New service request" || !strings.HasSuffix(pro[0].Message, "Budget: $12,500.00.") {
			t.Errorf("事業者宛ての通知 = %q / %q", pro[0].Title, pro[0].Message)
		}
		if pro[0].Link != "/constructionRequests/r-1" {
			t.Errorf("Link = %q", pro[0].Link)
		}
		client := st.writtenTo("client-1")
		if len(client) != 1 || client[0].Category != model.CategorySuccess {
			t.Errorf("依頼者宛ての通知 = %+v", client)
		}
	})

	t.Run("指名がなければ種別が一致する承認済み事業者全員に通知すること", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory().
			addProvider(model.ServiceProvider{ID: "p-1", UserID: "u-1", ServiceType: "renovation", IsApproved: true}).
			addProvider(model.ServiceProvider{ID: "p-2", UserID: "u-2", ServiceType: " Renovation ", IsApproved: true}).
			addProvider(model.ServiceProvider{ID: "p-3", UserID: "u-3", ServiceType: "renovation", IsApproved: false}).
			addProvider(model.ServiceProvider{ID: "p-4", UserID: "u-4", ServiceType: "construction", IsApproved: true}).
			addProvider(model.ServiceProvider{ID: "p-5", UserID: "", ServiceType: "renovation", IsApproved: true})
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "renovationRequests/r-1", nil, model.ServiceRequestDoc{UserID: "client-1", Title: "Bathroom"})

		rep := h.ServiceRequestCreated(context.Background(), ev)

		var pool int
		for _, n := range st.written() {
			if n.Category == model.CategoryServiceRequest {
				pool++
				if n.Title != "New request available" {
					t.Errorf("Title = %q", n.Title)
				}
			}
		}
		if pool != 2 {
			t.Errorf("事業者宛ての通知 = %d件, want 2件", pool)
		}
		if rep.Written() != 3 {
			t.Errorf("Written() = %d, want 3", rep.Written())
		}
	})

	t.Run("指名された事業者が存在しなくても依頼者には通知すること", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory()
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "constructionRequests/r-1", nil, model.ServiceRequestDoc{SubmitterID: "client-1", ProviderID: "missing"})

		rep := h.ServiceRequestCreated(context.Background(), ev)
		if rep.Written() != 1 || len(st.writtenTo("client-1")) != 1 {
			t.Errorf("Written() = %d, want 1 (%s)", rep.Written(), rep)
		}
	})
}

func TestHandlers_ServiceRequestStatusChanged(t *testing.T) {
	t.Parallel()

	t.Run("ステータスが同じなら通知しないこと", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory().addProvider(model.ServiceProvider{ID: "p-1", UserID: "pro-user-1", IsApproved: true})
		h := newTestHandlers(st, nil)
		doc := model.ServiceRequestDoc{UserID: "client-1", ProviderID: "p-1", Status: "Pending", Title: "Kitchen"}
		changedTitle := doc
		changedTitle.Title = "New kitchen"
		ev := mustEvent(t, event.KindUpdated, "constructionRequests/r-1", doc, changedTitle)

		rep := h.ServiceRequestStatusChanged(context.Background(), ev)
		if len(st.written()) != 0 {
			t.Errorf("通知 = %d件, want 0件", len(st.written()))
		}
		if rep.SkipReason == "" {
			t.Error("SkipReasonが空")
		}
	})

	t.Run("ステータスが変わると依頼者と事業者に新しいステータスを通知すること", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory().addProvider(model.ServiceProvider{ID: "p-1", UserID: "pro-user-1", IsApproved: true})
		h := newTestHandlers(st, nil)
		before := model.ServiceRequestDoc{UserID: "client-1", ProviderID: "p-1", Status: "Pending", Title: "Kitchen"}
		after := before
		after.Status = "Accepted"
		ev := mustEvent(t, event.KindUpdated, "constructionRequests/r-1", before, after)

		rep := h.ServiceRequestStatusChanged(context.Background(), ev)
		if rep.Written() != 2 {
			t.Fatalf("Written() = %d, want 2 (%s)", rep.Written(), rep)
		}
		for _, n := range st.written() {
			if !strings.Contains(n.Message, "is now Accepted.") {
				t.Errorf("Message = %q, 新しいステータスが含まれていない", n.Message)
			}
			if n.Category != model.CategoryStatusUpdate {
				t.Errorf("Category = %q", n.Category)
			}
		}
	})

	t.Run("大文字小文字だけの違いも変更として扱うこと", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory()
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindUpdated, "renovationRequests/r-1",
			model.ServiceRequestDoc{UserID: "client-1", Status: "pending"},
			model.ServiceRequestDoc{UserID: "client-1", Status: "Pending"})

		if rep := h.ServiceRequestStatusChanged(context.Background(), ev); rep.Written() != 1 {
			t.Errorf("Written() = %d, want 1", rep.Written())
		}
	})

	t.Run("ステータスは空白を詰めずにそのまま埋め込むこと", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory()
		h := newTestHandlers(st, nil)
		before := model.ServiceRequestDoc{UserID: "client-1", Status: "Pending", Title: "Kitchen"}
		after := before
		after.Status = "In  Progress ."
		ev := mustEvent(t, event.KindUpdated, "constructionRequests/r-1", before, after)

		if rep := h.ServiceRequestStatusChanged(context.Background(), ev); rep.Written() != 1 {
			t.Fatalf("Written() = %d, want 1 (%s)", rep.Written(), rep)
		}
		got := st.writtenTo("client-1")[0].Message
		if !strings.HasSuffix(got, "is now In  Progress ..") {
			t.Errorf("Message = %q, ステータスが加工されている", got)
		}
	})
}

func TestHandlers_ReviewCreated(t *testing.T) {
	t.Parallel()

	t.Run("事業者以外が対象のレビューは通知しないこと", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory()
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "reviews/rv-1", nil, model.ReviewDoc{TargetID: "l-1", TargetType: "listing", AuthorID: "client-1", Rating: 5})

		rep := h.ReviewCreated(context.Background(), ev)
		if len(st.written()) != 0 || rep.SkipReason == "" {
			t.Errorf("通知 = %d件, SkipReason = %q", len(st.written()), rep.SkipReason)
		}
	})

	t.Run("旧形式のtargetTypeでも事業者に投稿者名付きで通知すること", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory().addProvider(model.ServiceProvider{ID: "p-1", UserID: "pro-user-1", IsApproved: true})
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "reviews/rv-1", nil, model.ReviewDoc{TargetID: "p-1", TargetType: "construction", AuthorID: "client-1", Rating: 4})

		h.ReviewCreated(context.Background(), ev)
		got := st.writtenTo("pro-user-1")
		if len(got) != 1 {
			t.Fatalf("事業者宛ての通知 = %d件, want 1件", len(got))
		}
		if want := "Hana left a 4-star review."; got[0].Message != want {
			t.Errorf("Message = %q, want %q", got[0].Message, want)
		}
	})

	t.Run("投稿者が見つからなければ既定の表示名を使うこと", func(t *testing.T) {
		t.Parallel()

		st := seedDirectory().addProvider(model.ServiceProvider{ID: "p-1", UserID: "pro-user-1", IsApproved: true})
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "reviews/rv-1", nil, model.ReviewDoc{TargetID: "p-1", TargetType: "provider", AuthorID: "ghost", Rating: 5})

		h.ReviewCreated(context.Background(), ev)
		got := st.writtenTo("pro-user-1")
		if len(got) != 1 || got[0].Message != "A user left a 5-star review." {
			t.Errorf("通知 = %+v", got)
		}
	})
}

func TestHandlers_SupportMessageCreated(t *testing.T) {
	t.Parallel()

	st := seedDirectory()
	h := newTestHandlers(st, nil)
	ev := mustEvent(t, event.KindCreated, "supportMessages/sm-1", nil, model.SupportMessageDoc{Name: "Taro", Subject: "Cannot log in"})

	rep := h.SupportMessageCreated(context.Background(), ev)
	if rep.Written() != 2 {
		t.Fatalf("Written() = %d, want 2", rep.Written())
	}
	for _, n := range st.written() {
		if n.Message != "Taro: Cannot log in" || n.Category != model.CategoryAdmin {
			t.Errorf("通知 = %+v", n)
		}
	}
}

func TestHandlers_SupportChatMessageCreated(t *testing.T) {
	t.Parallel()

	newStore := func() *fakeStore {
		st := seedDirectory()
		st.supportChats["sc-assigned"] = model.SupportChat{ID: "sc-assigned", UserID: "client-1", AssignedAdminID: "admin-2"}
		st.supportChats["sc-open"] = model.SupportChat{ID: "sc-open", UserID: "client-1"}
		return st
	}

	tests := []struct {
		name       string
		path       string
		doc        model.SupportChatMessageDoc
		recipients []string
	}{
		{
			name:       "管理者の送信はユーザーに届くこと",
			path:       "supportChats/sc-assigned/messages/m-1",
			doc:        model.SupportChatMessageDoc{SenderID: "admin-2", SenderRole: "admin", Text: "Hello"},
			recipients: []string{"client-1"},
		},
		{
			name:       "ユーザーの送信は担当管理者に届くこと",
			path:       "supportChats/sc-assigned/messages/m-1",
			doc:        model.SupportChatMessageDoc{SenderID: "client-1", SenderRole: "client", Text: "Help"},
			recipients: []string{"admin-2"},
		},
		{
			name:       "担当者がいなければ管理者全員に届くこと",
			path:       "supportChats/sc-open/messages/m-1",
			doc:        model.SupportChatMessageDoc{SenderID: "client-1", Text: "Help"},
			recipients: []string{"admin-1", "admin-2"},
		},
		{
			name: "チャットが存在しなければ通知しないこと",
			path: "supportChats/missing/messages/m-1",
			doc:  model.SupportChatMessageDoc{SenderID: "client-1", Text: "Help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := newStore()
			h := newTestHandlers(st, nil)
			rep := h.SupportChatMessageCreated(context.Background(), mustEvent(t, event.KindCreated, tt.path, nil, tt.doc))

			got := st.written()
			if len(got) != len(tt.recipients) {
				t.Fatalf("通知 = %d件, want %d件 (%s)", len(got), len(tt.recipients), rep)
			}
			for _, id := range tt.recipients {
				if len(st.writtenTo(id)) != 1 {
					t.Errorf("%s宛ての通知がない", id)
				}
			}
			if rep.Err != nil {
				t.Errorf("Err = %v, want nil", rep.Err)
			}
		})
	}
}

func TestHandlers_ChatMessageCreated(t *testing.T) {
	t.Parallel()

	newStore := func() *fakeStore {
		st := seedDirectory()
		st.chats["c-1"] = model.Chat{ID: "c-1", Participants: []string{"client-1", "pro-user-1"}}
		st.chats["c-legacy"] = model.Chat{ID: "c-legacy"}
		return st
	}

	t.Run("もう一方の参加者に送信者名とプレビュー付きで通知すること", func(t *testing.T) {
		t.Parallel()

		st := newStore()
		h := newTestHandlers(st, nil)
		text := strings.Repeat("a", 60)
		ev := mustEvent(t, event.KindCreated, "chats/c-1/messages/m-1", nil, model.ChatMessageDoc{SenderID: "client-1", Text: text})

		h.ChatMessageCreated(context.Background(), ev)
		got := st.writtenTo("pro-user-1")
		if len(got) != 1 {
			t.Fatalf("受信者宛ての通知 = %d件, want 1件", len(got))
		}
		if want := "Hana: " + strings.Repeat("a", 50) + "..."; got[0].Message != want {
			t.Errorf("Message = %q, want %q", got[0].Message, want)
		}
		if len(st.writtenTo("client-1")) != 0 {
			t.Error("送信者自身に通知されている")
		}
	})

	t.Run("参加者のないチャットではreceiverIdに通知すること", func(t *testing.T) {
		t.Parallel()

		st := newStore()
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "chats/c-legacy/messages/m-1", nil,
			model.ChatMessageDoc{SenderID: "pro-user-1", ReceiverID: "client-1", Text: "Hi"})

		h.ChatMessageCreated(context.Background(), ev)
		got := st.writtenTo("client-1")
		if len(got) != 1 || got[0].Message != "kenji: Hi" {
			t.Errorf("通知 = %+v", got)
		}
	})

	t.Run("参加者がいるチャットではreceiverIdを使わないこと", func(t *testing.T) {
		t.Parallel()

		st := newStore()
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "chats/c-1/messages/m-1", nil,
			model.ChatMessageDoc{SenderID: "client-1", ReceiverID: "admin-1", Text: "Hi"})

		h.ChatMessageCreated(context.Background(), ev)
		if len(st.writtenTo("admin-1")) != 0 || len(st.writtenTo("pro-user-1")) != 1 {
			t.Errorf("通知 = %+v", st.written())
		}
	})

	t.Run("チャットが存在しなければ通知せずパニックもしないこと", func(t *testing.T) {
		t.Parallel()

		st := newStore()
		h := newTestHandlers(st, nil)
		ev := mustEvent(t, event.KindCreated, "chats/missing/messages/m-1", nil, model.ChatMessageDoc{SenderID: "client-1", Text: "Hi"})

		rep := h.ChatMessageCreated(context.Background(), ev)
		if len(st.written()) != 0 || rep.SkipReason == "" {
			t.Errorf("通知 = %d件, SkipReason = %q", len(st.written()), rep.SkipReason)
		}
	})
}

func TestHandlers_PartialFailure(t *testing.T) {
	t.Parallel()

	st := seedDirectory()
	st.failFor["admin-1"] = true
	h := newTestHandlers(st, nil)
	ev := mustEvent(t, event.KindCreated, "listings/l-1", nil, model.ListingDoc{OwnerID: "client-1"})

	rep := h.ListingCreated(context.Background(), ev)
	if rep.Written() != 2 || rep.Failed() != 1 {
		t.Errorf("Written/Failed = %d/%d, want 2/1", rep.Written(), rep.Failed())
	}
	if rep.Outcome() != "partial" {
		t.Errorf("Outcome() = %q, want partial", rep.Outcome())
	}
}

func TestHandlers_EmailSubscriptionCreated(t *testing.T) {
	t.Parallel()

	ev := func(t *testing.T) *event.Event {
		return mustEvent(t, event.KindCreated, "emailSubscriptions/sub-1", nil, model.EmailSubscription{Email: "user@example.com"})
	}

	t.Run("購読サービスにIDを渡すこと", func(t *testing.T) {
		t.Parallel()

		subs := &fakeSubscriptions{}
		rep := newTestHandlers(newFakeStore(), subs).EmailSubscriptionCreated(context.Background(), ev(t))
		if len(subs.ids) != 1 || subs.ids[0] != "sub-1" {
			t.Errorf("HandleCreatedの呼び出し = %v", subs.ids)
		}
		if rep.Outcome() != "ok" {
			t.Errorf("Outcome() = %q, want ok", rep.Outcome())
		}
	})

	t.Run("購読サービスの失敗をReportに記録すること", func(t *testing.T) {
		t.Parallel()

		sentinel := errors.New("delivery failed")
		rep := newTestHandlers(newFakeStore(), &fakeSubscriptions{err: sentinel}).EmailSubscriptionCreated(context.Background(), ev(t))
		if !errors.Is(rep.Err, sentinel) {
			t.Errorf("Err = %v, want %v", rep.Err, sentinel)
		}
	})

	t.Run("購読サービスがなければスキップすること", func(t *testing.T) {
		t.Parallel()

		rep := newTestHandlers(newFakeStore(), nil).EmailSubscriptionCreated(context.Background(), ev(t))
		if rep.SkipReason == "" {
			t.Error("SkipReasonが空")
		}
	})
}
