package model

// ListComposition links a user-curated list to a composition. The list and
// follower features themselves live outside this service; the rows exist
// here so the moderation queue can report usage counts.
type ListComposition struct {
	ID            int64 `json:"id"`
	ListID        int64 `json:"listId" gorm:"index"`
	CompositionID int64 `json:"compositionId" gorm:"index"`
}

// UserComposition links a user's library to a composition.
type UserComposition struct {
	ID            int64 `json:"id"`
	UserID        int64 `json:"userId" gorm:"index"`
	CompositionID int64 `json:"compositionId" gorm:"index"`
}
