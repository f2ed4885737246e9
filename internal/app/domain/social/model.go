// Package social defines reader engagement records around stories.
package social

import "time"

// Comment is a reader remark attached to a chapter.
type Comment struct {
	ID        string    `json:"id"`
	ChapterID string    `json:"chapter_id"`
	UserID    string    `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Like marks that a user liked a story. A user likes a story at most once.
type Like struct {
	StoryID   string    `json:"story_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Review is a rated write-up of a story. A user keeps at most one review per
// story; posting again replaces the previous one.
type Review struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"story_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
