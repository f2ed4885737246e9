// Package progress defines per-reader bookmarks within stories.
package progress

import "time"

// Progress records the chapter a reader last reached in a story. One record
// exists per (user, story) pair.
type Progress struct {
	UserID    string    `json:"user_id"`
	StoryID   string    `json:"story_id"`
	ChapterID string    `json:"chapter_id"`
	UpdatedAt time.Time `json:"updated_at"`
}
