// Package storage defines the persistence interfaces consumed by the domain
// services, with in-memory and PostgreSQL implementations in subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/inkpress/inkpress/internal/app/domain/chapter"
	"github.com/inkpress/inkpress/internal/app/domain/progress"
	"github.com/inkpress/inkpress/internal/app/domain/social"
	"github.com/inkpress/inkpress/internal/app/domain/story"
	"github.com/inkpress/inkpress/internal/app/domain/user"
)

// ErrNotFound is returned by every store when a record does not exist.
var ErrNotFound = errors.New("record not found")

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
}

// StoryStore persists stories and their cached aggregates.
type StoryStore interface {
	CreateStory(ctx context.Context, st story.Story) (story.Story, error)
	UpdateStory(ctx context.Context, st story.Story) (story.Story, error)
	GetStory(ctx context.Context, id string) (story.Story, error)
	ListStories(ctx context.Context, authorID string) ([]story.Story, error)
	DeleteStory(ctx context.Context, id string) error

	// RecomputeStoryWords recalculates the story's cached total word count as
	// the sum of WordCount over its published chapters, persists it, and
	// returns the new total.
	RecomputeStoryWords(ctx context.Context, storyID string) (int, error)
}

// ChapterStore persists chapters.
type ChapterStore interface {
	CreateChapter(ctx context.Context, ch chapter.Chapter) (chapter.Chapter, error)
	UpdateChapter(ctx context.Context, ch chapter.Chapter) (chapter.Chapter, error)
	GetChapter(ctx context.Context, id string) (chapter.Chapter, error)
	ListChapters(ctx context.Context, storyID string) ([]chapter.Chapter, error)
	DeleteChapter(ctx context.Context, id string) error

	// ListDueChapters returns up to limit chapters whose status is scheduled
	// and whose publish time is at or before now, oldest first.
	ListDueChapters(ctx context.Context, now time.Time, limit int) ([]chapter.Chapter, error)

	// ClaimScheduledChapter atomically transitions a chapter from scheduled to
	// published, stamping publishedAt. It reports false when the chapter was
	// no longer in the scheduled state, so concurrent reconciliation passes
	// transition each chapter at most once.
	ClaimScheduledChapter(ctx context.Context, id string, publishedAt time.Time) (bool, error)
}

// SocialStore persists comments, likes and reviews.
type SocialStore interface {
	CreateComment(ctx context.Context, c social.Comment) (social.Comment, error)
	GetComment(ctx context.Context, id string) (social.Comment, error)
	ListComments(ctx context.Context, chapterID string) ([]social.Comment, error)
	DeleteComment(ctx context.Context, id string) error

	// AddLike records a like; it reports false when the pair already existed.
	AddLike(ctx context.Context, storyID, userID string) (bool, error)
	// RemoveLike deletes a like; it reports false when no like existed.
	RemoveLike(ctx context.Context, storyID, userID string) (bool, error)
	CountLikes(ctx context.Context, storyID string) (int, error)

	UpsertReview(ctx context.Context, r social.Review) (social.Review, error)
	ListReviews(ctx context.Context, storyID string) ([]social.Review, error)
}

// ProgressStore persists per-user reading positions.
type ProgressStore interface {
	UpsertProgress(ctx context.Context, p progress.Progress) (progress.Progress, error)
	GetProgress(ctx context.Context, userID, storyID string) (progress.Progress, error)
}
