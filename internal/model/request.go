package model

import "github.com/nao1215/estatehub/pkg/event"

// ServiceRequestDoc はconstructionRequests / renovationRequestsのドキュメント。
// 依頼者IDは作成経路によって別のフィールド名で保存されている。
type ServiceRequestDoc struct {
	SubmitterID string   `json:"submitterId,omitempty"`
	UserID      string   `json:"userId,omitempty"`
	ClientID    string   `json:"clientId,omitempty"`
	OwnerID     string   `json:"ownerId,omitempty"`
	ProviderID  string   `json:"providerId,omitempty"`
	Status      string   `json:"status,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
	ServiceType string   `json:"serviceType,omitempty"`
	Title       string   `json:"title,omitempty"`
	ProjectType string   `json:"projectType,omitempty"`
}

// ServiceRequest は正規化済みのサービス依頼。
type ServiceRequest struct {
	// ID は依頼ドキュメントのID。
	ID string
	// SubmitterID は依頼者のユーザーID。別名のうち最初に空でないもの。
	SubmitterID string
	// ProviderID は指名された事業者のID。空の場合は公開依頼。
	ProviderID string
	// Status は自由文字列のステータス。比較はバイト単位で行う。
	Status string
	// Budget は予算。未設定の場合nil。
	Budget *float64
	// ServiceType は小文字化したサービス種別。
	ServiceType ServiceType
	// Title は依頼のタイトル。
	Title string
}

// FirstNonEmpty は引数のうち最初の空でない文字列を返す。
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Resolve は別名を解決して正規化済みのServiceRequestを返す。
// サービス種別はドキュメントのserviceTypeがあればそれを、なければコレクションから導出する。
func (d *ServiceRequestDoc) Resolve(id string, collection event.Collection) ServiceRequest {
	serviceType := NormalizeServiceType(d.ServiceType)
	if serviceType == "" {
		serviceType = ServiceTypeOf(collection)
	}
	return ServiceRequest{
		ID:          id,
		SubmitterID: FirstNonEmpty(d.SubmitterID, d.UserID, d.ClientID, d.OwnerID),
		ProviderID:  d.ProviderID,
		Status:      d.Status,
		Budget:      d.Budget,
		ServiceType: serviceType,
		Title:       FirstNonEmpty(d.Title, d.ProjectType),
	}
}

// ServiceTypeOf は依頼コレクションに対応するサービス種別を返す。
func ServiceTypeOf(collection event.Collection) ServiceType {
	switch collection {
	case event.CollectionConstructionRequests:
		return ServiceConstruction
	case event.CollectionRenovationRequests:
		return ServiceRenovation
	default:
		return ""
	}
}
