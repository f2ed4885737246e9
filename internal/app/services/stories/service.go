package stories

import (
	"context"
	"fmt"
	"strings"

	"github.com/inkpress/inkpress/internal/app/domain/story"
	"github.com/inkpress/inkpress/internal/app/storage"
	"github.com/inkpress/inkpress/internal/errors"
	"github.com/inkpress/inkpress/pkg/logger"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 5000
)

// Service manages stories and enforces author ownership.
type Service struct {
	store storage.StoryStore
	log   *logger.Logger
}

// New constructs a story service.
func New(store storage.StoryStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("stories")
	}
	return &Service{store: store, log: log}
}

// Create registers a new story owned by authorID. New stories start with an
// empty chapter list and a zero word count.
func (s *Service) Create(ctx context.Context, authorID, title, description string) (story.Story, error) {
	authorID = strings.TrimSpace(authorID)
	title = strings.TrimSpace(title)

	if authorID == "" {
		return story.Story{}, errors.InvalidInput("author id is required")
	}
	if title == "" {
		return story.Story{}, errors.InvalidInput("title is required")
	}
	if len(title) > maxTitleLength {
		return story.Story{}, errors.InvalidInput(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	if len(description) > maxDescriptionLength {
		return story.Story{}, errors.InvalidInput(fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}

	st, err := s.store.CreateStory(ctx, story.Story{
		AuthorID:    authorID,
		Title:       title,
		Description: description,
		Status:      story.StatusDraft,
	})
	if err != nil {
		return story.Story{}, err
	}

	s.log.WithField("story_id", st.ID).WithField("author_id", authorID).Info("story created")
	return st, nil
}

// Update modifies the title, description or status of a story the caller owns.
func (s *Service) Update(ctx context.Context, callerID, storyID, title, description string, status story.Status) (story.Story, error) {
	st, err := s.getOwned(ctx, callerID, storyID)
	if err != nil {
		return story.Story{}, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return story.Story{}, errors.InvalidInput("title is required")
	}
	if len(title) > maxTitleLength {
		return story.Story{}, errors.InvalidInput(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	if len(description) > maxDescriptionLength {
		return story.Story{}, errors.InvalidInput(fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}
	if !status.Valid() {
		return story.Story{}, errors.InvalidInput(fmt.Sprintf("unknown story status %q", status))
	}

	st.Title = title
	st.Description = description
	st.Status = status
	return s.store.UpdateStory(ctx, st)
}

// Get returns a story by id.
func (s *Service) Get(ctx context.Context, id string) (story.Story, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return story.Story{}, errors.InvalidInput("story id is required")
	}
	st, err := s.store.GetStory(ctx, id)
	if err == storage.ErrNotFound {
		return story.Story{}, errors.NotFound("story")
	}
	return st, err
}

// List returns stories, optionally filtered to a single author.
func (s *Service) List(ctx context.Context, authorID string) ([]story.Story, error) {
	return s.store.ListStories(ctx, strings.TrimSpace(authorID))
}

// Delete removes a story the caller owns along with its chapters.
func (s *Service) Delete(ctx context.Context, callerID, storyID string) error {
	if _, err := s.getOwned(ctx, callerID, storyID); err != nil {
		return err
	}
	if err := s.store.DeleteStory(ctx, storyID); err != nil {
		if err == storage.ErrNotFound {
			return errors.NotFound("story")
		}
		return err
	}
	s.log.WithField("story_id", storyID).Info("story deleted")
	return nil
}

func (s *Service) getOwned(ctx context.Context, callerID, storyID string) (story.Story, error) {
	st, err := s.Get(ctx, storyID)
	if err != nil {
		return story.Story{}, err
	}
	if st.AuthorID != callerID {
		return story.Story{}, errors.Forbidden("only the author may modify this story")
	}
	return st, nil
}
