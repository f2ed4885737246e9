package chapters

import (
	"context"
	"testing"
	"time"

	"github.com/inkpress/inkpress/internal/app/domain/chapter"
	"github.com/inkpress/inkpress/internal/app/domain/story"
	"github.com/inkpress/inkpress/internal/app/storage/memory"
	"github.com/inkpress/inkpress/internal/errors"
)

func newFixture(t *testing.T) (*Service, *memory.Store, story.Story) {
	t.Helper()
	store := memory.New()
	st, err := store.CreateStory(context.Background(), story.Story{
		AuthorID: "author-1",
		Title:    "Nightfall",
		Status:   story.StatusOngoing,
	})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	return New(store, store, nil), store, st
}

func TestCreateDerivesWordCount(t *testing.T) {
	svc, _, st := newFixture(t)

	ch, err := svc.Create(context.Background(), "author-1", st.ID, "One", "five words are in here", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ch.WordCount != 5 {
		t.Fatalf("expected word count 5, got %d", ch.WordCount)
	}
	if ch.Status != chapter.StatusDraft {
		t.Fatalf("new chapters must start as draft, got %s", ch.Status)
	}
}

func TestCreateRejectsNonAuthor(t *testing.T) {
	svc, _, st := newFixture(t)

	_, err := svc.Create(context.Background(), "someone-else", st.ID, "One", "body", 1)
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil || serviceErr.Code != errors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestScheduleRequiresFutureTime(t *testing.T) {
	svc, _, st := newFixture(t)
	ch, err := svc.Create(context.Background(), "author-1", st.ID, "One", "body", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, at := range []time.Time{
		time.Now().Add(-time.Hour),
		time.Now().Add(-time.Second),
	} {
		if _, err := svc.Schedule(context.Background(), "author-1", ch.ID, at, "UTC"); err == nil {
			t.Fatalf("schedule at %v should fail", at)
		}
	}

	got, _ := svc.Get(context.Background(), "author-1", ch.ID)
	if got.Status != chapter.StatusDraft {
		t.Fatalf("failed schedule must not change status, got %s", got.Status)
	}
}

func TestScheduleExactlyNowRejected(t *testing.T) {
	now := time.Now().UTC()
	clock := func() time.Time { return now }

	svc, store, st := newFixture(t)
	svc = New(store, store, nil, WithClock(clock))

	ch, err := svc.Create(context.Background(), "author-1", st.ID, "One", "body", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Schedule(context.Background(), "author-1", ch.ID, now, ""); err == nil {
		t.Fatalf("schedule at exactly now must be rejected")
	}
}

func TestScheduleStoresUTC(t *testing.T) {
	svc, _, st := newFixture(t)
	ch, err := svc.Create(context.Background(), "author-1", st.ID, "One", "body", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	local := time.Now().In(loc).Add(2 * time.Hour)

	scheduled, err := svc.Schedule(context.Background(), "author-1", ch.ID, local, "America/New_York")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if scheduled.ScheduledAt.Location() != time.UTC {
		t.Fatalf("scheduled_at must be stored in UTC, got %v", scheduled.ScheduledAt.Location())
	}
	if !scheduled.ScheduledAt.Equal(local) {
		t.Fatalf("UTC conversion changed the instant: %v vs %v", scheduled.ScheduledAt, local)
	}
	if scheduled.Timezone != "America/New_York" {
		t.Fatalf("timezone label lost: %q", scheduled.Timezone)
	}
	if scheduled.Status != chapter.StatusScheduled {
		t.Fatalf("expected scheduled, got %s", scheduled.Status)
	}
}

func TestScheduleRejectsNonDraft(t *testing.T) {
	svc, _, st := newFixture(t)
	ch, err := svc.Create(context.Background(), "author-1", st.ID, "One", "body", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.PublishNow(context.Background(), "author-1", ch.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_, err = svc.Schedule(context.Background(), "author-1", ch.ID, time.Now().Add(time.Hour), "")
	if err == nil {
		t.Fatalf("scheduling a published chapter must fail")
	}
}

func TestClearScheduleReturnsToDraft(t *testing.T) {
	svc, _, st := newFixture(t)
	ch, err := svc.Create(context.Background(), "author-1", st.ID, "One", "body", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Schedule(context.Background(), "author-1", ch.ID, time.Now().Add(time.Hour), "UTC"); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	cleared, err := svc.ClearSchedule(context.Background(), "author-1", ch.ID)
	if err != nil {
		t.Fatalf("clear schedule: %v", err)
	}
	if cleared.Status != chapter.StatusDraft {
		t.Fatalf("expected draft, got %s", cleared.Status)
	}
	if !cleared.ScheduledAt.IsZero() || cleared.Timezone != "" {
		t.Fatalf("schedule fields must be cleared: %v %q", cleared.ScheduledAt, cleared.Timezone)
	}
}

func TestPublishNowUpdatesStoryWords(t *testing.T) {
	svc, store, st := newFixture(t)
	ch, err := svc.Create(context.Background(), "author-1", st.ID, "One", "one two three", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	published, err := svc.PublishNow(context.Background(), "author-1", ch.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Status != chapter.StatusPublished || published.PublishedAt.IsZero() {
		t.Fatalf("publish did not stamp status/time: %+v", published)
	}

	got, _ := store.GetStory(context.Background(), st.ID)
	if got.TotalWords != 3 {
		t.Fatalf("expected total_words 3, got %d", got.TotalWords)
	}
}

func TestSetPrivateRemovesWordsFromTotal(t *testing.T) {
	svc, store, st := newFixture(t)
	ch, err := svc.Create(context.Background(), "author-1", st.ID, "One", "one two three four", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.PublishNow(context.Background(), "author-1", ch.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, err := svc.SetPrivate(context.Background(), "author-1", ch.ID); err != nil {
		t.Fatalf("set private: %v", err)
	}

	got, _ := store.GetStory(context.Background(), st.ID)
	if got.TotalWords != 0 {
		t.Fatalf("withdrawn chapter must leave the total, got %d", got.TotalWords)
	}
}

func TestListHidesUnpublishedFromReaders(t *testing.T) {
	svc, _, st := newFixture(t)
	draft, err := svc.Create(context.Background(), "author-1", st.ID, "Draft", "body", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pub, err := svc.Create(context.Background(), "author-1", st.ID, "Public", "body", 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.PublishNow(context.Background(), "author-1", pub.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}

	reader, err := svc.List(context.Background(), "reader-9", st.ID)
	if err != nil {
		t.Fatalf("list as reader: %v", err)
	}
	if len(reader) != 1 || reader[0].ID != pub.ID {
		t.Fatalf("readers must only see published chapters, got %d", len(reader))
	}

	author, err := svc.List(context.Background(), "author-1", st.ID)
	if err != nil {
		t.Fatalf("list as author: %v", err)
	}
	if len(author) != 2 {
		t.Fatalf("author must see all chapters, got %d", len(author))
	}
	_ = draft
}

func TestGetHidesUnpublishedFromReaders(t *testing.T) {
	svc, _, st := newFixture(t)

	draft, err := svc.Create(context.Background(), "author-1", st.ID, "Unreleased", "spoiler text", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	scheduled, err := svc.Create(context.Background(), "author-1", st.ID, "Next week", "more spoilers", 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Schedule(context.Background(), "author-1", scheduled.ID, time.Now().Add(time.Hour), ""); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	for _, caller := range []string{"", "reader-9"} {
		for _, id := range []string{draft.ID, scheduled.ID} {
			_, err := svc.Get(context.Background(), caller, id)
			serviceErr := errors.GetServiceError(err)
			if serviceErr == nil || serviceErr.Code != errors.CodeNotFound {
				t.Fatalf("caller %q must not see unpublished chapter %s, got %v", caller, id, err)
			}
		}
	}

	if _, err := svc.Get(context.Background(), "author-1", draft.ID); err != nil {
		t.Fatalf("author must see own draft: %v", err)
	}

	pub, err := svc.PublishNow(context.Background(), "author-1", draft.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := svc.Get(context.Background(), "", pub.ID)
	if err != nil {
		t.Fatalf("published chapter must be public: %v", err)
	}
	if got.Body != "spoiler text" {
		t.Fatalf("unexpected body %q", got.Body)
	}
}
