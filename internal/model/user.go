package model

import "strings"

// Role はユーザーのロール。
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleProvider Role = "provider"
	RoleClient   Role = "client"
)

// FallbackDisplayName は表示名を決められないときに使う名前。
const FallbackDisplayName = "A user"

// User はユーザーディレクトリのプロフィール。
type User struct {
	// ID はユーザーID。
	ID string `json:"id" db:"id" bson:"_id"`
	// Role はロール。
	Role Role `json:"role" db:"role" bson:"role"`
	// Name は氏名。
	Name string `json:"name,omitempty" db:"name" bson:"name,omitempty"`
	// DisplayName は表示名。
	DisplayName string `json:"displayName,omitempty" db:"display_name" bson:"displayName,omitempty"`
	// Email はメールアドレス。
	Email string `json:"email,omitempty" db:"email" bson:"email,omitempty"`
}

// PreferredName は表示名、氏名、メールアドレスのローカル部の順で最初に空でないものを返す。
// いずれもない場合はFallbackDisplayNameを返す。
func (u *User) PreferredName() string {
	if u == nil {
		return FallbackDisplayName
	}
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(strings.TrimSpace(u.Email), "@"); ok && local != "" {
		return local
	}
	return FallbackDisplayName
}
