package subscription

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nao1215/estatehub/internal/delivery"
	"github.com/nao1215/estatehub/internal/model"
	"github.com/nao1215/estatehub/internal/store"
	"github.com/nao1215/estatehub/pkg/event"
	"github.com/nao1215/estatehub/pkg/telemetry"
)

// メトリクスの結果ラベル
const (
	outcomeActive         = "active"
	outcomeDeliveryFailed = "delivery-failed"
	outcomeInvalid        = "invalid"
	outcomeDuplicate      = "duplicate"
	outcomeInternal       = "internal"
)

// Store は購読レコードの保存先。
type Store interface {
	FindActiveByEmail(ctx context.Context, email string) (*model.EmailSubscription, error)
	CreateSubscription(ctx context.Context, sub *model.EmailSubscription) error
	GetSubscription(ctx context.Context, id string) (*model.EmailSubscription, error)
	ClaimSubscription(ctx context.Context, id, claimant string, now time.Time) (bool, error)
	SaveDeliveryOutcome(ctx context.Context, sub *model.EmailSubscription) (bool, error)
}

// Sender は確認メールを送信する。delivery.Chainが満たす。
type Sender interface {
	Send(ctx context.Context, msg delivery.Message) delivery.Outcome
}

// Publisher は購読レコードの変更イベントを変更フィードに書き込む。
type Publisher interface {
	Publish(ctx context.Context, ev *event.Event) error
}

// SubscribeInput は購読の申込内容。
type SubscribeInput struct {
	// Email はメールアドレス。前後の空白と大文字小文字は無視する。
	Email string `json:"email"`
	// Source は申込元（例: "footer"）。
	Source string `json:"source,omitempty"`
}

// SubscribeResult は購読の受付結果。
type SubscribeResult struct {
	// SubscriptionID は作成した購読レコードのID。
	SubscriptionID string
	// Status は配信後の状態。
	Status model.SubscriptionStatus
	// MessageID は確認メールのメッセージID。
	MessageID string
	// Channel は確認メールを送信したチャネル。
	Channel string
}

// Service はメール購読の受付と確認メールの配信を行う。
type Service struct {
	store     Store
	sender    Sender
	publisher Publisher
	metrics   *telemetry.Metrics
	validate  *validator.Validate
	siteURL   string
	now       func() time.Time
	newID     func() string
}

// Option はServiceの設定を変更する関数。
type Option func(*Service)

// WithPublisher は購読作成イベントの書き込み先を設定する。
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSiteURL は確認メールに載せるサイトのURLを設定する。
func WithSiteURL(url string) Option {
	return func(s *Service) {
		s.siteURL = url
	}
}

// NewService は新しいServiceを生成する。
func NewService(store Store, sender Sender, opts ...Option) *Service {
	s := &Service{
		store:    store,
		sender:   sender,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe は購読を受け付けて確認メールを送信する（同期の入口）。
// 返すエラーは常に*Errorで、入力の誤り（invalid-argument）、重複（already-exists）、
// 受付後の配信失敗や保存失敗（internal）を区別する。
// pendingの重複は受け付けて新しいレコードを作る。
func (s *Service) Subscribe(ctx context.Context, in SubscribeInput) (SubscribeResult, error) {
	email := model.NormalizeEmail(in.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		s.metrics.Subscription(outcomeInvalid)
		return SubscribeResult{}, invalidArgument("Please enter a valid email address.", fmt.Errorf("%w: %v", ErrInvalidEmail, err))
	}

	existing, err := s.store.FindActiveByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		s.metrics.Subscription(outcomeDuplicate)
		return SubscribeResult{}, alreadyExists("This email is already subscribed.")
	case err != nil && !errors.Is(err, ErrNotFound):
		s.metrics.Subscription(outcomeInternal)
		return SubscribeResult{}, internal("Could not process your subscription. Please try again later.", err)
	}

	now := s.now()
	sub := &model.EmailSubscription{
		ID:        s.newID(),
		Email:     email,
		Status:    model.StatusPending,
		Source:    strings.TrimSpace(in.Source),
		ClaimedBy: model.ClaimedByCallable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		s.metrics.Subscription(outcomeInternal)
		return SubscribeResult{}, internal("Could not process your subscription. Please try again later.", err)
	}
	s.publishCreated(ctx, sub)

	next, err := s.deliver(ctx, *sub)
	if errors.Is(err, ErrAlreadySubscribed) {
		return SubscribeResult{}, alreadyExists("This email is already subscribed.")
	}
	result := SubscribeResult{
		SubscriptionID: sub.ID,
		Status:         next.Status,
		MessageID:      next.EmailMessageID,
		Channel:        next.DeliveryChannel,
	}
	if err != nil {
		return result, internal("Your subscription was received, but we could not send the confirmation email. Please contact support.", err)
	}
	return result, nil
}

// HandleCreated は購読作成イベントを処理する（非同期の入口）。
// 未担当のpendingレコードだけを担当にしてから配信し、担当済みや終端状態のレコードは何もしない。
func (s *Service) HandleCreated(ctx context.Context, subscriptionID string) error {
	sub, err := s.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("[Subscription] 購読 %s が見つからないためスキップします", subscriptionID)
			return nil
		}
		return err
	}
	if sub.IsTerminal() {
		log.Printf("[Subscription] 購読 %s は既に %s のためスキップします", sub.ID, sub.Status)
		return nil
	}

	claimed, err := s.store.ClaimSubscription(ctx, sub.ID, model.ClaimedByTrigger, s.now())
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("[Subscription] 購読 %s は担当済みのためスキップします", sub.ID)
		return nil
	}
	sub.ClaimedBy = model.ClaimedByTrigger

	_, err = s.deliver(ctx, *sub)
	if errors.Is(err, ErrAlreadySubscribed) {
		log.Printf("[Subscription] %s には有効な購読が既にあるため購読 %s をスキップします", sub.Email, sub.ID)
		return nil
	}
	return err
}

// Get はIDで購読レコードを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.EmailSubscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &Error{Code: CodeNotFound, Message: "Subscription not found.", Err: err}
		}
		return nil, internal("Could not load the subscription.", err)
	}
	return sub, nil
}

// deliver は確認メールを送信し、結果を状態遷移として保存する。同期・非同期の両方の入口から使う。
// 送信に失敗した場合はErrDeliveryFailedを包んだエラーを返す。
// 同じメールアドレスの有効な購読が他にあれば、送信前でも保存時でもErrAlreadySubscribedを返す。
func (s *Service) deliver(ctx context.Context, sub model.EmailSubscription) (model.EmailSubscription, error) {
	active, err := s.store.FindActiveByEmail(ctx, sub.Email)
	switch {
	case err == nil && active != nil && active.ID != sub.ID:
		s.metrics.Subscription(outcomeDuplicate)
		return sub, ErrAlreadySubscribed
	case err != nil && !errors.Is(err, ErrNotFound):
		s.metrics.Subscription(outcomeInternal)
		return sub, err
	}

	msg, err := ConfirmationMessage(sub.Email, s.siteURL)
	if err != nil {
		s.metrics.Subscription(outcomeInternal)
		return sub, err
	}

	out := s.sender.Send(ctx, msg)
	next, changed := Apply(sub, out, s.now())
	if changed {
		saved, err := s.store.SaveDeliveryOutcome(ctx, &next)
		if errors.Is(err, store.ErrConflict) {
			s.metrics.Subscription(outcomeDuplicate)
			return sub, fmt.Errorf("購読 %s: %w", sub.ID, ErrAlreadySubscribed)
		}
		if err != nil {
			s.metrics.Subscription(outcomeInternal)
			return next, fmt.Errorf("購読 %s の配信結果の保存に失敗: %w", sub.ID, err)
		}
		if !saved {
			log.Printf("[Subscription] 購読 %s は既にactiveのため配信結果を保存しませんでした", sub.ID)
		}
	}

	if !out.Delivered {
		s.metrics.Subscription(outcomeDeliveryFailed)
		log.Printf("[Subscription] 購読 %s の確認メールを送信できませんでした: %v", sub.ID, out.LastError)
		return next, fmt.Errorf("%w: %v", ErrDeliveryFailed, out.LastError)
	}
	s.metrics.Subscription(outcomeActive)
	log.Printf("[Subscription] 購読 %s を有効にしました (channel=%s, messageId=%s)", sub.ID, out.Channel, out.MessageID)
	return next, nil
}

// publishCreated は購読作成イベントを変更フィードに書き込む。失敗はログに出力するだけ。
func (s *Service) publishCreated(ctx context.Context, sub *model.EmailSubscription) {
	if s.publisher == nil {
		return
	}
	ev, err := event.New(event.KindCreated, string(event.CollectionEmailSubscriptions)+"/"+sub.ID, nil, sub)
	if err != nil {
		log.Printf("[Subscription] 購読作成イベントの生成に失敗: %v", err)
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("[Subscription] 購読作成イベントの書き込みに失敗: %v", err)
	}
}
