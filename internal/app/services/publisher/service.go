// Package publisher implements the scheduled-chapter reconciliation pass: it
// finds chapters whose publish time has arrived, transitions each one to the
// published state exactly once, and keeps the owning story's cached word
// count consistent.
package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/inkpress/inkpress/internal/app/metrics"
	"github.com/inkpress/inkpress/internal/app/storage"
	"github.com/inkpress/inkpress/internal/errors"
	"github.com/inkpress/inkpress/pkg/logger"
)

const (
	// DefaultBatchCap bounds how many due chapters a single pass processes.
	// The next pass picks up anything beyond the cap.
	DefaultBatchCap = 500

	// DefaultPassTimeout bounds the wall-clock time of a single pass.
	DefaultPassTimeout = 30 * time.Second
)

// ItemError describes a single chapter that failed to publish during a pass.
type ItemError struct {
	ChapterID string `json:"chapter_id"`
	StoryID   string `json:"story_id"`
	Reason    string `json:"reason"`
}

// Summary reports the outcome of one reconciliation pass.
type Summary struct {
	Published int         `json:"published"`
	Errors    []ItemError `json:"errors,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

// Service runs reconciliation passes over the chapter store.
type Service struct {
	chapters storage.ChapterStore
	stories  storage.StoryStore
	log      *logger.Logger

	batchCap    int
	passTimeout time.Duration
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBatchCap overrides the per-pass batch cap.
func WithBatchCap(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchCap = n
		}
	}
}

// WithPassTimeout overrides the per-pass timeout.
func WithPassTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.passTimeout = d
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a configured publisher service.
func New(chapters storage.ChapterStore, stories storage.StoryStore, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("publisher")
	}
	s := &Service{
		chapters:    chapters,
		stories:     stories,
		log:         log,
		batchCap:    DefaultBatchCap,
		passTimeout: DefaultPassTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile executes one pass: select due chapters, claim each one with an
// atomic conditional update, and recompute the parent story's cached word
// count. One chapter's failure never aborts the batch; a selection failure
// aborts the whole pass since no partial summary is meaningful.
//
// Chapters sharing a story are processed serially so the aggregate recompute
// cannot race with itself; distinct stories proceed concurrently.
func (s *Service) Reconcile(ctx context.Context) (Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.passTimeout)
	defer cancel()

	now := s.now().UTC()
	start := time.Now()
	summary := Summary{CheckedAt: now}

	due, err := s.chapters.ListDueChapters(ctx, now, s.batchCap)
	if err != nil {
		metrics.RecordReconcilePass(0, 1, time.Since(start))
		return Summary{}, errors.Unavailable("list due chapters", err)
	}
	if len(due) == 0 {
		metrics.RecordReconcilePass(0, 0, time.Since(start))
		return summary, nil
	}

	// Group due chapters by parent story, keeping scheduled order per group.
	groups := make(map[string][]string)
	order := make([]string, 0, len(due))
	for _, ch := range due {
		if _, seen := groups[ch.StoryID]; !seen {
			order = append(order, ch.StoryID)
		}
		groups[ch.StoryID] = append(groups[ch.StoryID], ch.ID)
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, storyID := range order {
		wg.Add(1)
		go func(storyID string, chapterIDs []string) {
			defer wg.Done()
			for _, chapterID := range chapterIDs {
				published, itemErr := s.publishOne(ctx, storyID, chapterID, now)
				mu.Lock()
				if itemErr != nil {
					summary.Errors = append(summary.Errors, *itemErr)
				} else if published {
					summary.Published++
				}
				mu.Unlock()
			}
		}(storyID, groups[storyID])
	}
	wg.Wait()

	metrics.RecordReconcilePass(summary.Published, len(summary.Errors), time.Since(start))
	s.log.WithField("published", summary.Published).
		WithField("item_errors", len(summary.Errors)).
		WithField("due", len(due)).
		Info("reconciliation pass complete")
	return summary, nil
}

// publishOne transitions a single chapter. The claim is conditional on the
// chapter still being scheduled, so a concurrent pass that got there first
// makes this a silent no-op rather than a duplicate publish.
func (s *Service) publishOne(ctx context.Context, storyID, chapterID string, now time.Time) (bool, *ItemError) {
	claimed, err := s.chapters.ClaimScheduledChapter(ctx, chapterID, now)
	if err != nil {
		s.log.WithError(err).
			WithField("chapter_id", chapterID).
			Warn("chapter claim failed")
		return false, &ItemError{ChapterID: chapterID, StoryID: storyID, Reason: "claim failed: " + err.Error()}
	}
	if !claimed {
		return false, nil
	}

	if _, err := s.stories.RecomputeStoryWords(ctx, storyID); err != nil {
		s.log.WithError(err).
			WithField("chapter_id", chapterID).
			WithField("story_id", storyID).
			Warn("story word count recompute failed")
		return false, &ItemError{ChapterID: chapterID, StoryID: storyID, Reason: "aggregate recompute failed: " + err.Error()}
	}

	s.log.WithField("chapter_id", chapterID).
		WithField("story_id", storyID).
		Info("scheduled chapter published")
	return true, nil
}
