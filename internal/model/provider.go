package model

import "strings"

// ServiceType は事業者が提供するサービスの種類。常に小文字で扱う。
type ServiceType string

const (
	ServiceConstruction ServiceType = "construction"
	ServiceRenovation   ServiceType = "renovation"
)

// NormalizeServiceType はサービス種別を前後の空白を除いて小文字に揃える。
func NormalizeServiceType(s string) ServiceType {
	return ServiceType(strings.ToLower(strings.TrimSpace(s)))
}

// ServiceProvider は承認済みであれば依頼を受けられるサービス事業者。
type ServiceProvider struct {
	// ID は事業者レコードのID。
	ID string `json:"id" db:"id" bson:"_id"`
	// UserID は通知先となるユーザーID。
	UserID string `json:"userId" db:"user_id" bson:"userId"`
	// ServiceType は提供するサービス種別（保存時に小文字化）。
	ServiceType ServiceType `json:"serviceType" db:"service_type" bson:"serviceType"`
	// IsApproved は管理者に承認されているかどうか。
	IsApproved bool `json:"isApproved" db:"is_approved" bson:"isApproved"`
	// BusinessName は屋号。
	BusinessName string `json:"businessName,omitempty" db:"business_name" bson:"businessName,omitempty"`
}

// Normalize はサービス種別を小文字化したコピーを返す。
func (p ServiceProvider) Normalize() ServiceProvider {
	p.ServiceType = NormalizeServiceType(string(p.ServiceType))
	return p
}
