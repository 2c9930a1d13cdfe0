package model

import "time"

// AssetType is the logical slot an uploaded file occupies on a composition.
type AssetType string

const (
	AssetSheetMusic  AssetType = "sheetMusic"
	AssetPerformance AssetType = "performance"
)

// Valid reports whether t is one of the known asset types.
func (t AssetType) Valid() bool {
	return t == AssetSheetMusic || t == AssetPerformance
}

// Asset represents an uploaded file attached to a composition. A composition
// holds at most one asset per type, enforced by the composite unique index.
type Asset struct {
	ID            int64     `json:"id"`
	CompositionID int64     `json:"compositionId" gorm:"uniqueIndex:idx_composition_slot"`
	Type          AssetType `json:"type" gorm:"size:32;uniqueIndex:idx_composition_slot"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	ObjectKey     string    `json:"-"` // key in the object store, not exposed in the API
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// UploadSlot is the write location handed out for a single upload attempt:
// a presigned PUT target plus the URL the object will be reachable at once
// the upload is confirmed.
type UploadSlot struct {
	UploadURL  string    `json:"uploadUrl"`
	DurableURL string    `json:"durableUrl"`
	ObjectKey  string    `json:"-"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
