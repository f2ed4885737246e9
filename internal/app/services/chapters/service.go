package chapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inkpress/inkpress/internal/app/domain/chapter"
	"github.com/inkpress/inkpress/internal/app/domain/story"
	"github.com/inkpress/inkpress/internal/app/storage"
	"github.com/inkpress/inkpress/internal/errors"
	"github.com/inkpress/inkpress/pkg/logger"
)

const maxTitleLength = 200

// Service manages chapters, their schedules and manual publication.
type Service struct {
	chapters storage.ChapterStore
	stories  storage.StoryStore
	log      *logger.Logger
	now      func() time.Time
}

// Option customizes service construction.
type Option func(*Service)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a chapter service.
func New(chapters storage.ChapterStore, stories storage.StoryStore, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("chapters")
	}
	s := &Service{
		chapters: chapters,
		stories:  stories,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a draft chapter to a story the caller owns. The word count is
// derived from the body at write time.
func (s *Service) Create(ctx context.Context, callerID, storyID, title, body string, position int) (chapter.Chapter, error) {
	if _, err := s.getOwnedStory(ctx, callerID, storyID); err != nil {
		return chapter.Chapter{}, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return chapter.Chapter{}, errors.InvalidInput("title is required")
	}
	if len(title) > maxTitleLength {
		return chapter.Chapter{}, errors.InvalidInput(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	if position < 0 {
		return chapter.Chapter{}, errors.InvalidInput("position must not be negative")
	}

	ch, err := s.chapters.CreateChapter(ctx, chapter.Chapter{
		StoryID:   storyID,
		Title:     title,
		Body:      body,
		WordCount: chapter.CountWords(body),
		Position:  position,
		Status:    chapter.StatusDraft,
	})
	if err != nil {
		return chapter.Chapter{}, err
	}

	s.log.WithField("chapter_id", ch.ID).WithField("story_id", storyID).Info("chapter created")
	return ch, nil
}

// Update edits a chapter's title, body or position. Editing the body of a
// published chapter refreshes the parent story's cached word total.
func (s *Service) Update(ctx context.Context, callerID, chapterID, title, body string, position int) (chapter.Chapter, error) {
	ch, err := s.getOwned(ctx, callerID, chapterID)
	if err != nil {
		return chapter.Chapter{}, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return chapter.Chapter{}, errors.InvalidInput("title is required")
	}
	if len(title) > maxTitleLength {
		return chapter.Chapter{}, errors.InvalidInput(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	if position < 0 {
		return chapter.Chapter{}, errors.InvalidInput("position must not be negative")
	}

	ch.Title = title
	ch.Body = body
	ch.WordCount = chapter.CountWords(body)
	ch.Position = position

	updated, err := s.chapters.UpdateChapter(ctx, ch)
	if err != nil {
		return chapter.Chapter{}, err
	}

	if updated.Status == chapter.StatusPublished {
		if _, err := s.stories.RecomputeStoryWords(ctx, updated.StoryID); err != nil {
			return chapter.Chapter{}, fmt.Errorf("recompute story words: %w", err)
		}
	}
	return updated, nil
}

// Schedule sets a future publish time on a draft chapter. publishAt is
// normalized to UTC before storage; timezone is kept only as a display label
// and never participates in due-time comparison. The time must be strictly
// in the future.
func (s *Service) Schedule(ctx context.Context, callerID, chapterID string, publishAt time.Time, timezone string) (chapter.Chapter, error) {
	ch, err := s.getOwned(ctx, callerID, chapterID)
	if err != nil {
		return chapter.Chapter{}, err
	}

	if ch.Status != chapter.StatusDraft {
		return chapter.Chapter{}, errors.InvalidInput(fmt.Sprintf("only draft chapters can be scheduled, chapter is %s", ch.Status))
	}
	if publishAt.IsZero() {
		return chapter.Chapter{}, errors.InvalidInput("publish_at is required")
	}
	if !publishAt.After(s.now()) {
		return chapter.Chapter{}, errors.InvalidInput("publish_at must be in the future")
	}
	timezone = strings.TrimSpace(timezone)
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return chapter.Chapter{}, errors.InvalidInput(fmt.Sprintf("unknown timezone %q", timezone))
		}
	}

	ch.Status = chapter.StatusScheduled
	ch.ScheduledAt = publishAt.UTC()
	ch.Timezone = timezone

	updated, err := s.chapters.UpdateChapter(ctx, ch)
	if err != nil {
		return chapter.Chapter{}, err
	}

	s.log.WithField("chapter_id", chapterID).
		WithField("scheduled_at", updated.ScheduledAt.Format(time.RFC3339)).
		Info("chapter scheduled")
	return updated, nil
}

// ClearSchedule cancels a pending schedule, returning the chapter to draft
// and clearing the stored timestamp and timezone label.
func (s *Service) ClearSchedule(ctx context.Context, callerID, chapterID string) (chapter.Chapter, error) {
	ch, err := s.getOwned(ctx, callerID, chapterID)
	if err != nil {
		return chapter.Chapter{}, err
	}

	if ch.Status != chapter.StatusScheduled {
		return chapter.Chapter{}, errors.InvalidInput(fmt.Sprintf("chapter is %s, not scheduled", ch.Status))
	}

	ch.Status = chapter.StatusDraft
	ch.ScheduledAt = time.Time{}
	ch.Timezone = ""

	updated, err := s.chapters.UpdateChapter(ctx, ch)
	if err != nil {
		return chapter.Chapter{}, err
	}

	s.log.WithField("chapter_id", chapterID).Info("chapter schedule cleared")
	return updated, nil
}

// PublishNow publishes a chapter immediately, regardless of any pending
// schedule, and refreshes the parent story's cached word total.
func (s *Service) PublishNow(ctx context.Context, callerID, chapterID string) (chapter.Chapter, error) {
	ch, err := s.getOwned(ctx, callerID, chapterID)
	if err != nil {
		return chapter.Chapter{}, err
	}

	if ch.Status == chapter.StatusPublished {
		return chapter.Chapter{}, errors.InvalidInput("chapter is already published")
	}

	ch.Status = chapter.StatusPublished
	ch.ScheduledAt = time.Time{}
	ch.Timezone = ""
	ch.PublishedAt = s.now().UTC()

	updated, err := s.chapters.UpdateChapter(ctx, ch)
	if err != nil {
		return chapter.Chapter{}, err
	}

	if _, err := s.stories.RecomputeStoryWords(ctx, updated.StoryID); err != nil {
		return chapter.Chapter{}, fmt.Errorf("recompute story words: %w", err)
	}

	s.log.WithField("chapter_id", chapterID).Info("chapter published")
	return updated, nil
}

// SetPrivate withdraws a chapter from public view. Withdrawing a published
// chapter removes its words from the story total.
func (s *Service) SetPrivate(ctx context.Context, callerID, chapterID string) (chapter.Chapter, error) {
	ch, err := s.getOwned(ctx, callerID, chapterID)
	if err != nil {
		return chapter.Chapter{}, err
	}

	wasPublished := ch.Status == chapter.StatusPublished

	ch.Status = chapter.StatusPrivate
	ch.ScheduledAt = time.Time{}
	ch.Timezone = ""

	updated, err := s.chapters.UpdateChapter(ctx, ch)
	if err != nil {
		return chapter.Chapter{}, err
	}

	if wasPublished {
		if _, err := s.stories.RecomputeStoryWords(ctx, updated.StoryID); err != nil {
			return chapter.Chapter{}, fmt.Errorf("recompute story words: %w", err)
		}
	}
	return updated, nil
}

// Get returns a chapter by id. Draft, scheduled and private chapters are
// visible only to the story's author; everyone else gets a not-found so the
// chapter's existence is not revealed either.
func (s *Service) Get(ctx context.Context, callerID, id string) (chapter.Chapter, error) {
	ch, err := s.get(ctx, id)
	if err != nil {
		return chapter.Chapter{}, err
	}
	if ch.Status == chapter.StatusPublished {
		return ch, nil
	}

	st, err := s.stories.GetStory(ctx, ch.StoryID)
	if err == storage.ErrNotFound {
		return chapter.Chapter{}, errors.NotFound("chapter")
	}
	if err != nil {
		return chapter.Chapter{}, err
	}
	if callerID == "" || callerID != st.AuthorID {
		return chapter.Chapter{}, errors.NotFound("chapter")
	}
	return ch, nil
}

func (s *Service) get(ctx context.Context, id string) (chapter.Chapter, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return chapter.Chapter{}, errors.InvalidInput("chapter id is required")
	}
	ch, err := s.chapters.GetChapter(ctx, id)
	if err == storage.ErrNotFound {
		return chapter.Chapter{}, errors.NotFound("chapter")
	}
	return ch, err
}

// List returns a story's chapters ordered by position. Unless the caller is
// the story's author, only published chapters are returned.
func (s *Service) List(ctx context.Context, callerID, storyID string) ([]chapter.Chapter, error) {
	st, err := s.stories.GetStory(ctx, storyID)
	if err == storage.ErrNotFound {
		return nil, errors.NotFound("story")
	}
	if err != nil {
		return nil, err
	}

	all, err := s.chapters.ListChapters(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if callerID == st.AuthorID {
		return all, nil
	}

	visible := make([]chapter.Chapter, 0, len(all))
	for _, ch := range all {
		if ch.Status == chapter.StatusPublished {
			visible = append(visible, ch)
		}
	}
	return visible, nil
}

// Delete removes a chapter the caller owns. Deleting a published chapter
// refreshes the parent story's cached word total.
func (s *Service) Delete(ctx context.Context, callerID, chapterID string) error {
	ch, err := s.getOwned(ctx, callerID, chapterID)
	if err != nil {
		return err
	}
	if err := s.chapters.DeleteChapter(ctx, chapterID); err != nil {
		if err == storage.ErrNotFound {
			return errors.NotFound("chapter")
		}
		return err
	}
	if ch.Status == chapter.StatusPublished {
		if _, err := s.stories.RecomputeStoryWords(ctx, ch.StoryID); err != nil {
			return fmt.Errorf("recompute story words: %w", err)
		}
	}
	return nil
}

func (s *Service) getOwned(ctx context.Context, callerID, chapterID string) (chapter.Chapter, error) {
	ch, err := s.get(ctx, chapterID)
	if err != nil {
		return chapter.Chapter{}, err
	}
	if _, err := s.getOwnedStory(ctx, callerID, ch.StoryID); err != nil {
		return chapter.Chapter{}, err
	}
	return ch, nil
}

func (s *Service) getOwnedStory(ctx context.Context, callerID, storyID string) (story.Story, error) {
	st, err := s.stories.GetStory(ctx, storyID)
	if err == storage.ErrNotFound {
		return story.Story{}, errors.NotFound("story")
	}
	if err != nil {
		return story.Story{}, err
	}
	if st.AuthorID != callerID {
		return story.Story{}, errors.Forbidden("only the author may modify this story")
	}
	return st, nil
}
