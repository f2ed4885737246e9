package social

import (
	"context"
	"strings"

	"github.com/inkpress/inkpress/internal/app/domain/chapter"
	"github.com/inkpress/inkpress/internal/app/domain/social"
	"github.com/inkpress/inkpress/internal/app/storage"
	"github.com/inkpress/inkpress/internal/errors"
	"github.com/inkpress/inkpress/pkg/logger"
)

const maxCommentLength = 5000

// Service manages comments, likes and reviews.
type Service struct {
	store    storage.SocialStore
	chapters storage.ChapterStore
	stories  storage.StoryStore
	log      *logger.Logger
}

// New constructs a social service.
func New(store storage.SocialStore, chapters storage.ChapterStore, stories storage.StoryStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("social")
	}
	return &Service{store: store, chapters: chapters, stories: stories, log: log}
}

// Comment attaches a remark to a published chapter.
func (s *Service) Comment(ctx context.Context, userID, chapterID, body string) (social.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return social.Comment{}, errors.InvalidInput("comment body is required")
	}
	if len(body) > maxCommentLength {
		return social.Comment{}, errors.InvalidInput("comment is too long")
	}

	ch, err := s.chapters.GetChapter(ctx, chapterID)
	if err == storage.ErrNotFound {
		return social.Comment{}, errors.NotFound("chapter")
	}
	if err != nil {
		return social.Comment{}, err
	}
	if ch.Status != chapter.StatusPublished {
		return social.Comment{}, errors.InvalidInput("chapter is not published")
	}

	return s.store.CreateComment(ctx, social.Comment{
		ChapterID: chapterID,
		UserID:    userID,
		Body:      body,
	})
}

// ListComments returns a chapter's comments, oldest first.
func (s *Service) ListComments(ctx context.Context, chapterID string) ([]social.Comment, error) {
	return s.store.ListComments(ctx, chapterID)
}

// DeleteComment removes a comment its author posted.
func (s *Service) DeleteComment(ctx context.Context, callerID, commentID string) error {
	c, err := s.store.GetComment(ctx, commentID)
	if err == storage.ErrNotFound {
		return errors.NotFound("comment")
	}
	if err != nil {
		return err
	}
	if c.UserID != callerID {
		return errors.Forbidden("only the comment author may delete it")
	}
	return s.store.DeleteComment(ctx, commentID)
}

// Like records that a user liked a story. Repeat calls are no-ops.
func (s *Service) Like(ctx context.Context, userID, storyID string) error {
	if err := s.ensureStory(ctx, storyID); err != nil {
		return err
	}
	_, err := s.store.AddLike(ctx, storyID, userID)
	return err
}

// Unlike removes a user's like. Removing an absent like is a no-op.
func (s *Service) Unlike(ctx context.Context, userID, storyID string) error {
	_, err := s.store.RemoveLike(ctx, storyID, userID)
	return err
}

// LikeCount returns how many users like the story.
func (s *Service) LikeCount(ctx context.Context, storyID string) (int, error) {
	return s.store.CountLikes(ctx, storyID)
}

// Review records or replaces the caller's review of a story.
func (s *Service) Review(ctx context.Context, userID, storyID string, rating int, body string) (social.Review, error) {
	if rating < 1 || rating > 5 {
		return social.Review{}, errors.InvalidInput("rating must be between 1 and 5")
	}
	if err := s.ensureStory(ctx, storyID); err != nil {
		return social.Review{}, err
	}
	return s.store.UpsertReview(ctx, social.Review{
		StoryID: storyID,
		UserID:  userID,
		Rating:  rating,
		Body:    strings.TrimSpace(body),
	})
}

// ListReviews returns a story's reviews, oldest first.
func (s *Service) ListReviews(ctx context.Context, storyID string) ([]social.Review, error) {
	return s.store.ListReviews(ctx, storyID)
}

func (s *Service) ensureStory(ctx context.Context, storyID string) error {
	_, err := s.stories.GetStory(ctx, storyID)
	if err == storage.ErrNotFound {
		return errors.NotFound("story")
	}
	return err
}
