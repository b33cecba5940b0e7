package model

import "time"

// Category は通知の種類。
type Category string

const (
	CategoryInfo           Category = "info"
	CategorySuccess        Category = "success"
	CategoryWarning        Category = "warning"
	CategoryError          Category = "error"
	CategoryServiceRequest Category = "service-request"
	CategoryStatusUpdate   Category = "status-update"
	CategoryAdmin          Category = "admin"
)

// Notification はユーザーの受信箱に表示されるアプリ内通知。
// 作成後にコアが更新することはなく、既読化は受信箱APIのみが行う。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string `json:"id" db:"id" bson:"_id"`
	// RecipientID は受信者のユーザーID。
	RecipientID string `json:"userId" db:"recipient_id" bson:"userId"`
	// Title は通知のタイトル。
	Title string `json:"title" db:"title" bson:"title"`
	// Message は通知の本文。
	Message string `json:"message" db:"message" bson:"message"`
	// Category は通知の種類。
	Category Category `json:"type" db:"category" bson:"type"`
	// Read は既読かどうか。
	Read bool `json:"read" db:"is_read" bson:"read"`
	// Link は遷移先のパス（任意）。
	Link string `json:"link,omitempty" db:"link" bson:"link,omitempty"`
	// CreatedAt はサーバーが付与した作成日時（UTC）。
	CreatedAt time.Time `json:"createdAt" db:"created_at" bson:"createdAt"`
}
