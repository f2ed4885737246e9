package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/inkpress/inkpress/internal/app/domain/chapter"
	"github.com/inkpress/inkpress/internal/app/domain/progress"
	"github.com/inkpress/inkpress/internal/app/domain/social"
	"github.com/inkpress/inkpress/internal/app/domain/story"
	"github.com/inkpress/inkpress/internal/app/domain/user"
	"github.com/inkpress/inkpress/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu              sync.RWMutex
	nextID          int64
	users           map[string]user.User
	usersByEmail    map[string]string
	usersByUsername map[string]string
	stories         map[string]story.Story
	chapters        map[string]chapter.Chapter
	comments        map[string]social.Comment
	likes           map[string]map[string]time.Time
	reviews         map[string]map[string]social.Review
	progress        map[string]progress.Progress
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.StoryStore = (*Store)(nil)
var _ storage.ChapterStore = (*Store)(nil)
var _ storage.SocialStore = (*Store)(nil)
var _ storage.ProgressStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:          1,
		users:           make(map[string]user.User),
		usersByEmail:    make(map[string]string),
		usersByUsername: make(map[string]string),
		stories:         make(map[string]story.Story),
		chapters:        make(map[string]chapter.Chapter),
		comments:        make(map[string]social.Comment),
		likes:           make(map[string]map[string]time.Time),
		reviews:         make(map[string]map[string]social.Review),
		progress:        make(map[string]progress.Progress),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	username := strings.ToLower(u.Username)
	if _, exists := s.usersByEmail[email]; exists {
		return user.User{}, fmt.Errorf("email %s already registered", u.Email)
	}
	if _, exists := s.usersByUsername[username]; exists {
		return user.User{}, fmt.Errorf("username %s already taken", u.Username)
	}

	if u.ID == "" {
		u.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	s.usersByUsername[username] = u.ID
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}

	u.Username = original.Username
	u.Email = original.Email
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByUsername[strings.ToLower(username)]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

// StoryStore implementation ---------------------------------------------------

func (s *Store) CreateStory(_ context.Context, st story.Story) (story.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = s.nextIDLocked()
	} else if _, exists := s.stories[st.ID]; exists {
		return story.Story{}, fmt.Errorf("story %s already exists", st.ID)
	}

	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now
	s.stories[st.ID] = st
	return st, nil
}

func (s *Store) UpdateStory(_ context.Context, st story.Story) (story.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.stories[st.ID]
	if !ok {
		return story.Story{}, storage.ErrNotFound
	}

	st.AuthorID = original.AuthorID
	st.CreatedAt = original.CreatedAt
	st.UpdatedAt = time.Now().UTC()
	s.stories[st.ID] = st
	return st, nil
}

func (s *Store) GetStory(_ context.Context, id string) (story.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stories[id]
	if !ok {
		return story.Story{}, storage.ErrNotFound
	}
	return st, nil
}

func (s *Store) ListStories(_ context.Context, authorID string) ([]story.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []story.Story
	for _, st := range s.stories {
		if authorID == "" || st.AuthorID == authorID {
			result = append(result, st)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteStory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stories[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.stories, id)
	for chID, ch := range s.chapters {
		if ch.StoryID == id {
			delete(s.chapters, chID)
		}
	}
	return nil
}

func (s *Store) RecomputeStoryWords(_ context.Context, storyID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stories[storyID]
	if !ok {
		return 0, storage.ErrNotFound
	}

	total := 0
	for _, ch := range s.chapters {
		if ch.StoryID == storyID && ch.Status == chapter.StatusPublished {
			total += ch.WordCount
		}
	}
	st.TotalWords = total
	st.UpdatedAt = time.Now().UTC()
	s.stories[storyID] = st
	return total, nil
}

// ChapterStore implementation -------------------------------------------------

func (s *Store) CreateChapter(_ context.Context, ch chapter.Chapter) (chapter.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stories[ch.StoryID]; !ok {
		return chapter.Chapter{}, storage.ErrNotFound
	}
	if ch.ID == "" {
		ch.ID = s.nextIDLocked()
	} else if _, exists := s.chapters[ch.ID]; exists {
		return chapter.Chapter{}, fmt.Errorf("chapter %s already exists", ch.ID)
	}

	now := time.Now().UTC()
	ch.CreatedAt = now
	ch.UpdatedAt = now
	s.chapters[ch.ID] = ch
	return ch, nil
}

func (s *Store) UpdateChapter(_ context.Context, ch chapter.Chapter) (chapter.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.chapters[ch.ID]
	if !ok {
		return chapter.Chapter{}, storage.ErrNotFound
	}

	ch.StoryID = original.StoryID
	ch.CreatedAt = original.CreatedAt
	ch.UpdatedAt = time.Now().UTC()
	s.chapters[ch.ID] = ch
	return ch, nil
}

func (s *Store) GetChapter(_ context.Context, id string) (chapter.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.chapters[id]
	if !ok {
		return chapter.Chapter{}, storage.ErrNotFound
	}
	return ch, nil
}

func (s *Store) ListChapters(_ context.Context, storyID string) ([]chapter.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []chapter.Chapter
	for _, ch := range s.chapters {
		if ch.StoryID == storyID {
			result = append(result, ch)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) DeleteChapter(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chapters[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.chapters, id)
	return nil
}

func (s *Store) ListDueChapters(_ context.Context, now time.Time, limit int) ([]chapter.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []chapter.Chapter
	for _, ch := range s.chapters {
		if ch.Due(now) {
			result = append(result, ch)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledAt.Before(result[j].ScheduledAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ClaimScheduledChapter(_ context.Context, id string, publishedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.chapters[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if ch.Status != chapter.StatusScheduled {
		return false, nil
	}

	ch.Status = chapter.StatusPublished
	ch.PublishedAt = publishedAt.UTC()
	ch.UpdatedAt = time.Now().UTC()
	s.chapters[id] = ch
	return true, nil
}

// SocialStore implementation --------------------------------------------------

func (s *Store) CreateComment(_ context.Context, c social.Comment) (social.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	}
	c.CreatedAt = time.Now().UTC()
	s.comments[c.ID] = c
	return c, nil
}

func (s *Store) GetComment(_ context.Context, id string) (social.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return social.Comment{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListComments(_ context.Context, chapterID string) ([]social.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []social.Comment
	for _, c := range s.comments {
		if c.ChapterID == chapterID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteComment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.comments, id)
	return nil
}

func (s *Store) AddLike(_ context.Context, storyID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.likes[storyID]
	if !ok {
		byUser = make(map[string]time.Time)
		s.likes[storyID] = byUser
	}
	if _, exists := byUser[userID]; exists {
		return false, nil
	}
	byUser[userID] = time.Now().UTC()
	return true, nil
}

func (s *Store) RemoveLike(_ context.Context, storyID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.likes[storyID]
	if !ok {
		return false, nil
	}
	if _, exists := byUser[userID]; !exists {
		return false, nil
	}
	delete(byUser, userID)
	return true, nil
}

func (s *Store) CountLikes(_ context.Context, storyID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.likes[storyID]), nil
}

func (s *Store) UpsertReview(_ context.Context, r social.Review) (social.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUser, ok := s.reviews[r.StoryID]
	if !ok {
		byUser = make(map[string]social.Review)
		s.reviews[r.StoryID] = byUser
	}

	now := time.Now().UTC()
	if existing, exists := byUser[r.UserID]; exists {
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
	} else {
		if r.ID == "" {
			r.ID = s.nextIDLocked()
		}
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	byUser[r.UserID] = r
	return r, nil
}

func (s *Store) ListReviews(_ context.Context, storyID string) ([]social.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []social.Review
	for _, r := range s.reviews[storyID] {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// ProgressStore implementation ------------------------------------------------

func progressKey(userID, storyID string) string {
	return userID + "/" + storyID
}

func (s *Store) UpsertProgress(_ context.Context, p progress.Progress) (progress.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = time.Now().UTC()
	s.progress[progressKey(p.UserID, p.StoryID)] = p
	return p, nil
}

func (s *Store) GetProgress(_ context.Context, userID, storyID string) (progress.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[progressKey(userID, storyID)]
	if !ok {
		return progress.Progress{}, storage.ErrNotFound
	}
	return p, nil
}
