package event

import (
	"encoding/json"
	"time"
)

// Kind はドキュメントのライフサイクル遷移の種類を表す。
type Kind string

const (
	// KindCreated はドキュメントが作成されたことを表す。
	KindCreated Kind = "created"
	// KindUpdated はドキュメントが更新されたことを表す。Beforeを必ず持つ。
	KindUpdated Kind = "updated"
	// KindDeleted はドキュメントが削除されたことを表す。
	KindDeleted Kind = "deleted"
)

// Valid は既知のKindかどうかを返す。
func (k Kind) Valid() bool {
	switch k {
	case KindCreated, KindUpdated, KindDeleted:
		return true
	default:
		return false
	}
}

// Collection はドキュメントストアのコレクションを表す。
// サブコレクションはIDを除いたパス（例: "chats/messages"）で表す。
type Collection string

const (
	// CollectionListings は物件掲載のコレクション。
	CollectionListings Collection = "listings"
	// CollectionConstructionRequests は建築工事依頼のコレクション。
	CollectionConstructionRequests Collection = "constructionRequests"
	// CollectionRenovationRequests はリノベーション依頼のコレクション。
	CollectionRenovationRequests Collection = "renovationRequests"
	// CollectionReviews はレビューのコレクション。
	CollectionReviews Collection = "reviews"
	// CollectionSupportMessages は問い合わせメッセージのコレクション。
	CollectionSupportMessages Collection = "supportMessages"
	// CollectionSupportChats はサポートチャットのコレクション。
	CollectionSupportChats Collection = "supportChats"
	// CollectionSupportChatMessages はサポートチャット内メッセージのサブコレクション。
	CollectionSupportChatMessages Collection = "supportChats/messages"
	// CollectionChats はユーザー間チャットのコレクション。
	CollectionChats Collection = "chats"
	// CollectionChatMessages はユーザー間チャット内メッセージのサブコレクション。
	CollectionChatMessages Collection = "chats/messages"
	// CollectionUsers はユーザープロフィールのコレクション。
	CollectionUsers Collection = "users"
	// CollectionServiceProviders はサービス事業者のコレクション。
	CollectionServiceProviders Collection = "serviceProviders"
	// CollectionEmailSubscriptions はメールマガジン購読のコレクション。
	CollectionEmailSubscriptions Collection = "emailSubscriptions"
)

// Event はドキュメントストアへの書き込み1件に対応する変更イベント。
// トリガー境界の入力であり、(kind, before, after, documentPath) を運ぶ。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// Seq は変更フィード内の単調増加する順序番号。Event Storeが採番する。
	Seq int64 `json:"seq"`
	// Kind はライフサイクル遷移の種類。
	Kind Kind `json:"kind"`
	// Collection は対象ドキュメントのコレクション。
	Collection Collection `json:"collection"`
	// DocumentID は対象ドキュメントのID（パスの末尾要素）。
	DocumentID string `json:"document_id"`
	// DocumentPath は対象ドキュメントのフルパス（例: "chats/c1/messages/m1"）。
	DocumentPath string `json:"document_path"`
	// Before は更新前のスナップショット。作成イベントでは空。
	Before json.RawMessage `json:"before,omitempty"`
	// After は更新後のスナップショット。削除イベントでは空。
	After json.RawMessage `json:"after,omitempty"`
	// CreatedAt はイベントが記録された日時。
	CreatedAt time.Time `json:"created_at"`
}
