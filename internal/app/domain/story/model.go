// Package story defines stories, the top-level works chapters belong to.
package story

import "time"

// Status describes the lifecycle of a story as a whole.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusOngoing, StatusCompleted:
		return true
	}
	return false
}

// Story is a serialized work made of chapters.
//
// TotalWords is a cached aggregate: the sum of WordCount over the story's
// published chapters. It is recomputed whenever a chapter enters or leaves
// the published state, so unpublished drafts never leak into it.
type Story struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	TotalWords  int       `json:"total_words"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
