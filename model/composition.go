package model

import "time"

// Composition represents a musical composition in the library.
// Approved is tri-state: nil means the composition is still pending
// moderation, true/false records the admin decision.
type Composition struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Approved  *bool      `json:"approved"`
	Composers []Composer `json:"composers" gorm:"many2many:composition_composers"`
	Assets    []Asset    `json:"assets"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Composer represents a composer credited on one or more compositions.
type Composer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CompositionSummary is the moderation-queue view of a pending composition:
// the row itself plus the usage counts admins triage by.
type CompositionSummary struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Composers []string `json:"composers"`
	ListCount int64    `json:"listCount"` // lists referencing the composition
	UserCount int64    `json:"userCount"` // users referencing the composition
}
