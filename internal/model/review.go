package model

import "strings"

// TargetType はレビュー対象の種類。
type TargetType string

// TargetProvider はサービス事業者を対象とするレビュー。
const TargetProvider TargetType = "provider"

// legacyProviderTargets は旧データで事業者レビューを表していたtargetTypeの値。
var legacyProviderTargets = map[string]bool{
	"construction": true,
	"renovation":   true,
}

// ReviewDoc はreviewsのドキュメント。
type ReviewDoc struct {
	TargetID   string `json:"targetId,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
	TargetType string `json:"targetType,omitempty"`
	AuthorID   string `json:"authorId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Rating     int    `json:"rating,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

// Review は正規化済みのレビュー。
type Review struct {
	ID         string
	TargetID   string
	TargetType TargetType
	AuthorID   string
	Rating     int
	Comment    string
	// Legacy は旧形式のtargetTypeを互換表で変換したかどうか。
	Legacy bool
}

// Resolve はtargetTypeを正規の値に変換する。
// "provider" が正規の値で、旧形式の "construction" / "renovation" は "provider" として扱う。
func (d *ReviewDoc) Resolve(id string) Review {
	raw := strings.ToLower(strings.TrimSpace(d.TargetType))
	targetType := TargetType(raw)
	legacy := false
	if legacyProviderTargets[raw] {
		targetType = TargetProvider
		legacy = true
	}
	return Review{
		ID:         id,
		TargetID:   FirstNonEmpty(d.TargetID, d.ProviderID),
		TargetType: targetType,
		AuthorID:   FirstNonEmpty(d.AuthorID, d.UserID),
		Rating:     d.Rating,
		Comment:    d.Comment,
		Legacy:     legacy,
	}
}

// TargetsProvider は事業者宛てのレビューかどうかを返す。
func (r Review) TargetsProvider() bool {
	return r.TargetType == TargetProvider && r.TargetID != ""
}
