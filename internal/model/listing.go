package model

// ListingDoc はlistingsのドキュメント。
type ListingDoc struct {
	OwnerID     string `json:"ownerId,omitempty"`
	UserID      string `json:"userId,omitempty"`
	SubmitterID string `json:"submitterId,omitempty"`
	Title       string `json:"title,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Listing は正規化済みの物件掲載。
type Listing struct {
	ID          string
	Title       string
	SubmitterID string
	Status      string
}

// Resolve は掲載者IDの別名を解決する。
func (d *ListingDoc) Resolve(id string) Listing {
	return Listing{
		ID:          id,
		Title:       d.Title,
		SubmitterID: FirstNonEmpty(d.OwnerID, d.UserID, d.SubmitterID),
		Status:      d.Status,
	}
}
