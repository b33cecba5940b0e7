package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/internal/store"
	"github.com/nao1215/estatehub/pkg/event"
)

// ハンドラー名。メトリクスのラベルとログに使う。
const (
	HandlerListingCreated              = "ListingCreated"
	HandlerServiceRequestCreated       = "ServiceRequestCreated"
	HandlerServiceRequestStatusChanged = "ServiceRequestStatusChanged"
	HandlerReviewCreated               = "ReviewCreated"
	HandlerSupportMessageCreated       = "SupportMessageCreated"
	HandlerSupportChatMessageCreated   = "SupportChatMessageCreated"
	HandlerChatMessageCreated          = "ChatMessageCreated"
	HandlerEmailSubscriptionCreated    = "EmailSubscriptionCreated"
)

// Handlers はドキュメントの変更イベントを通知に変換するハンドラー群。
// どのハンドラーもエラーを返さず、結果をReportとして返す。
type Handlers struct {
	resolver      *Resolver
	writer        *Writer
	chats         ChatStore
	subscriptions SubscriptionHandler
}

// NewHandlers は新しいHandlersを生成する。
// subscriptionsがnilの場合、メール購読の作成イベントは処理せずにスキップする。
func NewHandlers(resolver *Resolver, writer *Writer, chats ChatStore, subscriptions SubscriptionHandler) *Handlers {
	return &Handlers{
		resolver:      resolver,
		writer:        writer,
		chats:         chats,
		subscriptions: subscriptions,
	}
}

func newReport(handler string, ev *event.Event) *Report {
	return &Report{Handler: handler, DocumentPath: ev.DocumentPath}
}

// draftsFor は受信者ごとに同じ内容の下書きを作る。
func draftsFor(ids []string, title, message string, category model.Category, link string) []Draft {
	drafts := make([]Draft, 0, len(ids))
	for _, id := range ids {
		drafts = append(drafts, Draft{
			RecipientID: id,
			Title:       title,
			Message:     message,
			Category:    category,
			Link:        link,
		})
	}
	return drafts
}

// ListingCreated は物件掲載の作成を管理者と掲載者に通知する。
func (h *Handlers) ListingCreated(ctx context.Context, ev *event.Event) Report {
	rep := newReport(HandlerListingCreated, ev)
	doc, err := event.DecodeAfter[model.ListingDoc](ev)
	if err != nil {
		return rep.fail(err)
	}
	listing := doc.Resolve(ev.DocumentID)
	name := quoted(listing.Title, "A new listing")

	var drafts []Draft
	admins := rep.resolve(h.resolver.Admins(ctx))
	drafts = append(drafts, draftsFor(admins,
		"New listing pending approval",
		fmt.Sprintf("%s was submitted and is waiting for your review.", name),
		model.CategoryAdmin,
		"/admin/listings/"+listing.ID,
	)...)

	submitter := rep.resolve(h.resolver.Submitter(listing.SubmitterID))
	drafts = append(drafts, draftsFor(submitter,
		"Listing submitted",
		tidy(fmt.Sprintf("Your listing %s has been submitted and is pending approval.", quoted(listing.Title, ""))),
		model.CategoryInfo,
		"/listings/"+listing.ID,
	)...)

	rep.Results = h.writer.FanOut(ctx, drafts)
	return *rep
}

// ServiceRequestCreated はサービス依頼の作成を依頼者と事業者に通知する。
// 事業者が指名されていればその事業者に、なければ種別が一致する承認済み事業者全員に通知する。
func (h *Handlers) ServiceRequestCreated(ctx context.Context, ev *event.Event) Report {
	rep := newReport(HandlerServiceRequestCreated, ev)
	doc, err := event.DecodeAfter[model.ServiceRequestDoc](ev)
	if err != nil {
		return rep.fail(err)
	}
	req := doc.Resolve(ev.DocumentID, ev.Collection)
	title := quoted(req.Title, "")
	link := requestLink(ev.Collection, req.ID)

	var drafts []Draft
	submitterMessage := fmt.Sprintf("Your %s request %s has been submitted. The provider will review it shortly.", req.ServiceType, title)
	if req.ProviderID == "" {
		submitterMessage = fmt.Sprintf("Your %s request %s has been submitted. Matching providers will review it shortly.", req.ServiceType, title)
	}
	submitter := rep.resolve(h.resolver.Submitter(req.SubmitterID))
	drafts = append(drafts, draftsFor(submitter, "Request submitted", tidy(submitterMessage), model.CategorySuccess, link)...)

	if req.ProviderID != "" {
		providers := rep.resolve(h.resolver.AssignedProvider(ctx, req.ProviderID))
		drafts = append(drafts, draftsFor(providers,
			"New service request",
			withBudget(tidy(fmt.Sprintf("You have received a new %s request %s.", req.ServiceType, title)), req.Budget),
			model.CategoryServiceRequest,
			link,
		)...)
	} else {
		pool := rep.resolve(h.resolver.BroadcastPool(ctx, req.ServiceType))
		drafts = append(drafts, draftsFor(pool,
			"New request available",
			withBudget(tidy(fmt.Sprintf("A new %s request %s is open for quotes.", req.ServiceType, title)), req.Budget),
			model.CategoryServiceRequest,
			link,
		)...)
	}

	rep.Results = h.writer.FanOut(ctx, drafts)
	return *rep
}

// ServiceRequestStatusChanged はサービス依頼のステータス変更を依頼者と指名事業者に通知する。
// ステータスがバイト単位で同じ場合は何もしない。
func (h *Handlers) ServiceRequestStatusChanged(ctx context.Context, ev *event.Event) Report {
	rep := newReport(HandlerServiceRequestStatusChanged, ev)
	before, err := event.DecodeBefore[model.ServiceRequestDoc](ev)
	if err != nil {
		return rep.fail(err)
	}
	after, err := event.DecodeAfter[model.ServiceRequestDoc](ev)
	if err != nil {
		return rep.fail(err)
	}
	if before.Status == after.Status {
		return rep.skip("ステータスが変わっていません (%q)", after.Status)
	}
	req := after.Resolve(ev.DocumentID, ev.Collection)
	title := quoted(req.Title, "")
	link := requestLink(ev.Collection, req.ID)

	var drafts []Draft
	submitter := rep.resolve(h.resolver.Submitter(req.SubmitterID))
	drafts = append(drafts, draftsFor(submitter,
		"Request status updated",
		tidy(fmt.Sprintf("Your %s request %s is now", req.ServiceType, title))+" "+req.Status+".",
		model.CategoryStatusUpdate,
		link,
	)...)
	if req.ProviderID != "" {
		providers := rep.resolve(h.resolver.AssignedProvider(ctx, req.ProviderID))
		drafts = append(drafts, draftsFor(providers,
			"Request status updated",
			tidy(fmt.Sprintf("The %s request %s is now", req.ServiceType, title))+" "+req.Status+".",
			model.CategoryStatusUpdate,
			link,
		)...)
	}

	rep.Results = h.writer.FanOut(ctx, drafts)
	return *rep
}

// ReviewCreated は事業者宛てのレビューを事業者に通知する。
func (h *Handlers) ReviewCreated(ctx context.Context, ev *event.Event) Report {
	rep := newReport(HandlerReviewCreated, ev)
	doc, err := event.DecodeAfter[model.ReviewDoc](ev)
	if err != nil {
		return rep.fail(err)
	}
	review := doc.Resolve(ev.DocumentID)
	if !review.TargetsProvider() {
		return rep.skip("事業者宛てのレビューではありません (targetType=%q)", review.TargetType)
	}
	if review.Legacy {
		log.Printf("[Handler] 旧形式のtargetType %q を provider として扱います (%s)", doc.TargetType, ev.DocumentPath)
	}

	providers := rep.resolve(h.resolver.AssignedProvider(ctx, review.TargetID))
	if len(providers) == 0 {
		return *rep
	}
	name := h.resolver.DisplayName(ctx, review.AuthorID)
	drafts := draftsFor(providers,
		"New review",
		fmt.Sprintf("%s left a %d-star review.", name, review.Rating),
		model.CategoryInfo,
		"/providers/"+review.TargetID+"/reviews",
	)

	rep.Results = h.writer.FanOut(ctx, drafts)
	return *rep
}

// SupportMessageCreated は問い合わせを管理者全員に通知する。
func (h *Handlers) SupportMessageCreated(ctx context.Context, ev *event.Event) Report {
	rep := newReport(HandlerSupportMessageCreated, ev)
	doc, err := event.DecodeAfter[model.SupportMessageDoc](ev)
	if err != nil {
		return rep.fail(err)
	}
	sender := strings.TrimSpace(doc.Name)
	if sender == "" {
		sender = h.resolver.DisplayName(ctx, doc.UserID)
	}
	summary := model.FirstNonEmpty(strings.TrimSpace(doc.Subject), strings.TrimSpace(doc.Message))

	admins := rep.resolve(h.resolver.Admins(ctx))
	drafts := draftsFor(admins,
		"New support message",
		fmt.Sprintf("%s: %s", sender, Preview(summary)),
		model.CategoryAdmin,
		"/admin/support/"+ev.DocumentID,
	)

	rep.Results = h.writer.FanOut(ctx, drafts)
	return *rep
}

// SupportChatMessageCreated はサポートチャットの新着メッセージを相手側に通知する。
// 管理者の送信はユーザーに、ユーザーの送信は担当管理者に届く。担当者がいなければ管理者全員に届く。
func (h *Handlers) SupportChatMessageCreated(ctx context.Context, ev *event.Event) Report {
	rep := newReport(HandlerSupportChatMessageCreated, ev)
	doc, err := event.DecodeAfter[model.SupportChatMessageDoc](ev)
	if err != nil {
		return rep.fail(err)
	}
	chatID := event.ParentID(ev.DocumentPath)
	chat, err := h.chats.GetSupportChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return rep.skip("サポートチャット %s が見つかりません", chatID)
		}
		return rep.fail(fmt.Errorf("サポートチャット %s の取得に失敗: %w", chatID, err))
	}

	var (
		recipients []string
		title      string
		link       string
	)
	switch {
	case doc.SentByAdmin():
		recipients = rep.resolve(h.resolver.Participant(chat.UserID, doc.SenderID))
		title = "New message from support"
		link = "/support/" + chat.ID
	case chat.AssignedAdminID != "":
		recipients = rep.resolve(h.resolver.Participant(chat.AssignedAdminID, doc.SenderID))
		title = "New support chat message"
		link = "/admin/support-chats/" + chat.ID
	default:
		recipients = rep.resolve(h.resolver.Admins(ctx))
		title = "New support chat message"
		link = "/admin/support-chats/" + chat.ID
	}

	rep.Results = h.writer.FanOut(ctx, draftsFor(recipients, title, Preview(doc.Text), model.CategoryInfo, link))
	return *rep
}

// ChatMessageCreated はチャットの新着メッセージをもう一方の参加者に通知する。
// 受信者はチャットのparticipantsから求め、participantsがないチャットに限り
// メッセージのreceiverIdを使う。チャットが存在しない場合は通知しない。
func (h *Handlers) ChatMessageCreated(ctx context.Context, ev *event.Event) Report {
	rep := newReport(HandlerChatMessageCreated, ev)
	doc, err := event.DecodeAfter[model.ChatMessageDoc](ev)
	if err != nil {
		return rep.fail(err)
	}
	chatID := event.ParentID(ev.DocumentPath)
	chat, err := h.chats.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return rep.skip("チャット %s が見つかりません", chatID)
		}
		return rep.fail(fmt.Errorf("チャット %s の取得に失敗: %w", chatID, err))
	}

	receiver := chat.OtherParticipant(doc.SenderID)
	if len(chat.Participants) == 0 {
		receiver = doc.ReceiverID
	}
	recipients := rep.resolve(h.resolver.Participant(receiver, doc.SenderID))
	if len(recipients) == 0 {
		return *rep
	}
	name := h.resolver.DisplayName(ctx, doc.SenderID)
	drafts := draftsFor(recipients,
		"New message",
		fmt.Sprintf("%s: %s", name, Preview(doc.Text)),
		model.CategoryInfo,
		"/chats/"+chatID,
	)

	rep.Results = h.writer.FanOut(ctx, drafts)
	return *rep
}

// EmailSubscriptionCreated はメール購読の作成イベントを購読サービスの非同期経路に渡す。
func (h *Handlers) EmailSubscriptionCreated(ctx context.Context, ev *event.Event) Report {
	rep := newReport(HandlerEmailSubscriptionCreated, ev)
	if h.subscriptions == nil {
		return rep.skip("購読サービスが設定されていません")
	}
	if err := h.subscriptions.HandleCreated(ctx, ev.DocumentID); err != nil {
		return rep.fail(fmt.Errorf("購読 %s の処理に失敗: %w", ev.DocumentID, err))
	}
	return *rep
}

// requestLink はサービス依頼の画面へのリンクを返す。
func requestLink(collection event.Collection, id string) string {
	return "/" + string(collection) + "/" + id
}

// tidy はタイトルが空のときに残る余分な空白を詰める。
func tidy(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, " .", ".")
}
