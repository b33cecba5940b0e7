package model

import (
	"strings"
	"time"
)

// SubscriptionStatus はメール購読の状態。
type SubscriptionStatus string

const (
	// StatusPending は確認メールが未送信、または送信に失敗した状態。
	StatusPending SubscriptionStatus = "pending"
	// StatusActive は確認メールの送信に成功した終端状態。
	StatusActive SubscriptionStatus = "active"
)

// 配信を担当する入口の識別子
const (
	ClaimedByCallable = "callable"
	ClaimedByTrigger  = "trigger"
)

// NormalizeEmail はメールアドレスの前後の空白を除いて小文字にする。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailSubscription はメールマガジンの購読レコード。
type EmailSubscription struct {
	// ID は購読レコードのID。
	ID string `json:"id" db:"id" bson:"_id"`
	// Email は正規化済みのメールアドレス。
	Email string `json:"email" db:"email" bson:"email"`
	// Status は購読の状態。
	Status SubscriptionStatus `json:"status" db:"status" bson:"status"`
	// Source は購読の申込元（例: "footer"）。
	Source string `json:"source,omitempty" db:"source" bson:"source,omitempty"`
	// EmailMessageID は送信成功時のメッセージID。
	EmailMessageID string `json:"emailMessageId,omitempty" db:"email_message_id" bson:"emailMessageId,omitempty"`
	// EmailError は最後の送信エラー。
	EmailError string `json:"emailError,omitempty" db:"email_error" bson:"emailError,omitempty"`
	// EmailSentAt は送信成功日時。
	EmailSentAt *time.Time `json:"emailSentAt,omitempty" db:"email_sent_at" bson:"emailSentAt,omitempty"`
	// EmailFailedAt は最後の送信失敗日時。
	EmailFailedAt *time.Time `json:"emailFailedAt,omitempty" db:"email_failed_at" bson:"emailFailedAt,omitempty"`
	// DeliveryChannel は送信に成功したチャネル名。
	DeliveryChannel string `json:"deliveryChannel,omitempty" db:"delivery_channel" bson:"deliveryChannel,omitempty"`
	// ClaimedBy は配信を担当する入口（callable / trigger）。空なら未担当。
	ClaimedBy string `json:"claimedBy,omitempty" db:"claimed_by" bson:"claimedBy,omitempty"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"createdAt" db:"created_at" bson:"createdAt"`
	// UpdatedAt は更新日時。
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at" bson:"updatedAt"`
}

// IsTerminal は以後変更されない状態かどうかを返す。
func (s *EmailSubscription) IsTerminal() bool {
	return s.Status == StatusActive
}
