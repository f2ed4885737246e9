package progress

import (
	"context"

	"github.com/inkpress/inkpress/internal/app/domain/progress"
	"github.com/inkpress/inkpress/internal/app/storage"
	"github.com/inkpress/inkpress/internal/errors"
	"github.com/inkpress/inkpress/pkg/logger"
)

// Service tracks how far readers have gotten in each story.
type Service struct {
	store    storage.ProgressStore
	chapters storage.ChapterStore
	log      *logger.Logger
}

// New constructs a progress service.
func New(store storage.ProgressStore, chapters storage.ChapterStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("progress")
	}
	return &Service{store: store, chapters: chapters, log: log}
}

// Set records that the user reached chapterID in storyID. The chapter must
// belong to the addressed story, so a bookmark can never land in a different
// story than the one it was sent to.
func (s *Service) Set(ctx context.Context, userID, storyID, chapterID string) (progress.Progress, error) {
	ch, err := s.chapters.GetChapter(ctx, chapterID)
	if err == storage.ErrNotFound {
		return progress.Progress{}, errors.NotFound("chapter")
	}
	if err != nil {
		return progress.Progress{}, err
	}
	if ch.StoryID != storyID {
		return progress.Progress{}, errors.InvalidInput("chapter does not belong to this story")
	}
	return s.store.UpsertProgress(ctx, progress.Progress{
		UserID:    userID,
		StoryID:   ch.StoryID,
		ChapterID: chapterID,
	})
}

// Get returns the user's bookmark in a story.
func (s *Service) Get(ctx context.Context, userID, storyID string) (progress.Progress, error) {
	p, err := s.store.GetProgress(ctx, userID, storyID)
	if err == storage.ErrNotFound {
		return progress.Progress{}, errors.NotFound("reading progress")
	}
	return p, err
}
