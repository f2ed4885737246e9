package social

import (
	"context"
	"testing"
	"time"

	"github.com/inkpress/inkpress/internal/app/domain/chapter"
	"github.com/inkpress/inkpress/internal/app/domain/story"
	"github.com/inkpress/inkpress/internal/app/storage/memory"
)

func newFixture(t *testing.T) (*Service, string, string) {
	t.Helper()
	store := memory.New()
	st, err := store.CreateStory(context.Background(), story.Story{AuthorID: "author-1", Title: "T", Status: story.StatusOngoing})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	ch, err := store.CreateChapter(context.Background(), chapter.Chapter{
		StoryID:     st.ID,
		Title:       "One",
		Status:      chapter.StatusPublished,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create chapter: %v", err)
	}
	return New(store, store, store, nil), st.ID, ch.ID
}

func TestCommentsOnPublishedChapter(t *testing.T) {
	svc, _, chapterID := newFixture(t)

	c, err := svc.Comment(context.Background(), "reader-1", chapterID, "loved this")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}

	list, err := svc.ListComments(context.Background(), chapterID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(list) != 1 || list[0].Body != "loved this" {
		t.Fatalf("comment not stored: %+v", list)
	}

	if err := svc.DeleteComment(context.Background(), "someone-else", c.ID); err == nil {
		t.Fatalf("non-author delete should fail")
	}
	if err := svc.DeleteComment(context.Background(), "reader-1", c.ID); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
}

func TestLikeIsIdempotent(t *testing.T) {
	svc, storyID, _ := newFixture(t)

	for i := 0; i < 3; i++ {
		if err := svc.Like(context.Background(), "reader-1", storyID); err != nil {
			t.Fatalf("like %d: %v", i, err)
		}
	}
	count, err := svc.LikeCount(context.Background(), storyID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("repeat likes must not stack, got %d", count)
	}

	if err := svc.Unlike(context.Background(), "reader-1", storyID); err != nil {
		t.Fatalf("unlike: %v", err)
	}
	if err := svc.Unlike(context.Background(), "reader-1", storyID); err != nil {
		t.Fatalf("second unlike must be a no-op: %v", err)
	}
	count, _ = svc.LikeCount(context.Background(), storyID)
	if count != 0 {
		t.Fatalf("expected 0 likes, got %d", count)
	}
}

func TestReviewUpsert(t *testing.T) {
	svc, storyID, _ := newFixture(t)

	if _, err := svc.Review(context.Background(), "reader-1", storyID, 6, ""); err == nil {
		t.Fatalf("rating above 5 should fail")
	}
	if _, err := svc.Review(context.Background(), "reader-1", storyID, 0, ""); err == nil {
		t.Fatalf("rating below 1 should fail")
	}

	if _, err := svc.Review(context.Background(), "reader-1", storyID, 3, "fine"); err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, err := svc.Review(context.Background(), "reader-1", storyID, 5, "it grew on me"); err != nil {
		t.Fatalf("re-review: %v", err)
	}

	list, err := svc.ListReviews(context.Background(), storyID)
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("one review per user per story, got %d", len(list))
	}
	if list[0].Rating != 5 || list[0].Body != "it grew on me" {
		t.Fatalf("review not replaced: %+v", list[0])
	}
}

func TestCommentRejectsUnpublishedChapter(t *testing.T) {
	store := memory.New()
	st, _ := store.CreateStory(context.Background(), story.Story{AuthorID: "a", Title: "T"})
	draft, _ := store.CreateChapter(context.Background(), chapter.Chapter{StoryID: st.ID, Title: "D", Status: chapter.StatusDraft})
	svc := New(store, store, store, nil)

	if _, err := svc.Comment(context.Background(), "reader-1", draft.ID, "early"); err == nil {
		t.Fatalf("commenting an unpublished chapter should fail")
	}
}
