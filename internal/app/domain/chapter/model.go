// Package chapter defines chapters and their publication lifecycle.
package chapter

import (
	"strings"
	"time"
)

// Status describes where a chapter sits in the publication lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusPublished Status = "published"
	StatusPrivate   Status = "private"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublished, StatusPrivate:
		return true
	}
	return false
}

// Chapter is a single installment of a story.
//
// ScheduledAt is always stored in UTC; the zero value means no schedule is
// set. Timezone records the IANA zone the author picked the time in and is
// used for display only, never for due-time comparison. PublishedAt is
// stamped once, when the chapter first transitions to published.
type Chapter struct {
	ID          string    `json:"id"`
	StoryID     string    `json:"story_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body,omitempty"`
	WordCount   int       `json:"word_count"`
	Position    int       `json:"position"`
	Status      Status    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Due reports whether the chapter is scheduled and its publish time has
// arrived. A schedule exactly equal to now counts as due.
func (c Chapter) Due(now time.Time) bool {
	return c.Status == StatusScheduled && !c.ScheduledAt.IsZero() && !c.ScheduledAt.After(now)
}

// CountWords returns the number of whitespace-separated words in body.
func CountWords(body string) int {
	return len(strings.Fields(body))
}
