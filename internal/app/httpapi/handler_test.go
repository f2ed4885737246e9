package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/inkpress/inkpress/internal/app"
	"github.com/inkpress/inkpress/internal/app/domain/chapter"
	"github.com/inkpress/inkpress/internal/app/domain/story"
	"github.com/inkpress/inkpress/internal/app/storage/memory"
	"github.com/inkpress/inkpress/internal/middleware"
)

const triggerSecret = "trigger-secret"

func newServer(t *testing.T) (http.Handler, *app.Application, *memory.Store) {
	t.Helper()

	store := memory.New()
	application, err := app.New(app.Stores{
		Users:    store,
		Stories:  store,
		Chapters: store,
		Social:   store,
		Progress: store,
	}, app.Options{TokenSecret: []byte("test-secret")}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}

	handler := NewHandler(application, Deps{
		Auth:    middleware.NewAuthMiddleware(application.Users, nil),
		Trigger: middleware.NewTriggerAuth(triggerSecret, nil),
	})
	return handler, application, store
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func registerAndLogin(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/users", "", map[string]string{
		"username": "maya",
		"email":    "maya@example.com",
		"password": "password123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/sessions", "", map[string]string{
		"email":    "maya@example.com",
		"password": "password123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("login: status %d: %s", rec.Code, rec.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session.Token
}

func TestStoryAndChapterFlow(t *testing.T) {
	handler, _, _ := newServer(t)
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/stories", token, map[string]string{
		"title": "The Lighthouse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create story: status %d: %s", rec.Code, rec.Body.String())
	}
	var st story.Story
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode story: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/stories/"+st.ID+"/chapters", token, map[string]any{
		"title":    "One",
		"body":     "five words are in here",
		"position": 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create chapter: status %d: %s", rec.Code, rec.Body.String())
	}
	var ch chapter.Chapter
	if err := json.Unmarshal(rec.Body.Bytes(), &ch); err != nil {
		t.Fatalf("decode chapter: %v", err)
	}
	if ch.WordCount != 5 {
		t.Fatalf("expected word count 5, got %d", ch.WordCount)
	}

	rec = doJSON(t, handler, http.MethodPost, "/chapters/"+ch.ID+"/publish", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/stories/"+st.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get story: status %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode story: %v", err)
	}
	if st.TotalWords != 5 {
		t.Fatalf("expected total_words 5 after publish, got %d", st.TotalWords)
	}
}

func TestScheduleEndpointValidation(t *testing.T) {
	handler, _, _ := newServer(t)
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/stories", token, map[string]string{"title": "S"})
	var st story.Story
	_ = json.Unmarshal(rec.Body.Bytes(), &st)
	rec = doJSON(t, handler, http.MethodPost, "/stories/"+st.ID+"/chapters", token, map[string]any{
		"title": "One", "body": "text", "position": 1,
	})
	var ch chapter.Chapter
	_ = json.Unmarshal(rec.Body.Bytes(), &ch)

	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	rec = doJSON(t, handler, http.MethodPut, "/chapters/"+ch.ID+"/schedule", token, map[string]string{
		"publish_at": past,
		"timezone":   "UTC",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("past schedule should be 400, got %d: %s", rec.Code, rec.Body.String())
	}

	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	rec = doJSON(t, handler, http.MethodPut, "/chapters/"+ch.ID+"/schedule", token, map[string]string{
		"publish_at": future,
		"timezone":   "UTC",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("future schedule: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, "/chapters/"+ch.ID+"/schedule", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear schedule: status %d: %s", rec.Code, rec.Body.String())
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &ch)
	if ch.Status != chapter.StatusDraft {
		t.Fatalf("cleared chapter should be draft, got %s", ch.Status)
	}
}

func TestTriggerRequiresSecret(t *testing.T) {
	handler, _, store := newServer(t)

	st, _ := store.CreateStory(context.Background(), story.Story{AuthorID: "a", Title: "T"})
	due, _ := store.CreateChapter(context.Background(), chapter.Chapter{
		StoryID:     st.ID,
		Title:       "Due",
		Status:      chapter.StatusScheduled,
		ScheduledAt: time.Now().Add(-time.Minute).UTC(),
	})

	for name, token := range map[string]string{
		"missing": "",
		"wrong":   "not-the-secret",
	} {
		rec := doJSON(t, handler, http.MethodPost, "/publish-scheduled", token, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s bearer: expected 401, got %d", name, rec.Code)
		}
		var body struct {
			Success bool `json:"success"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s bearer: decode: %v", name, err)
		}
		if body.Success {
			t.Fatalf("%s bearer: success must be false", name)
		}

		got, _ := store.GetChapter(context.Background(), due.ID)
		if got.Status != chapter.StatusScheduled {
			t.Fatalf("%s bearer: rejected trigger must not mutate, got %s", name, got.Status)
		}
	}
}

func TestTriggerPublishesDueChapters(t *testing.T) {
	handler, _, store := newServer(t)

	st, _ := store.CreateStory(context.Background(), story.Story{AuthorID: "a", Title: "T"})
	for i := 0; i < 2; i++ {
		_, err := store.CreateChapter(context.Background(), chapter.Chapter{
			StoryID:     st.ID,
			Title:       fmt.Sprintf("Due %d", i),
			Status:      chapter.StatusScheduled,
			ScheduledAt: time.Now().Add(-time.Minute).UTC(),
		})
		if err != nil {
			t.Fatalf("seed chapter: %v", err)
		}
	}

	rec := doJSON(t, handler, http.MethodPost, "/publish-scheduled", triggerSecret, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trigger: status %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success   bool   `json:"success"`
		Published int    `json:"published"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Published != 2 {
		t.Fatalf("expected success with 2 published, got %+v", body)
	}

	// The unauthenticated status endpoint runs a pass too; nothing is left.
	rec = doJSON(t, handler, http.MethodGet, "/publish-scheduled", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint: %d", rec.Code)
	}
	var summary struct {
		Published int       `json:"published"`
		CheckedAt time.Time `json:"checked_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Published != 0 {
		t.Fatalf("second pass should publish 0, got %d", summary.Published)
	}
	if summary.CheckedAt.IsZero() {
		t.Fatalf("checked_at missing")
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	handler, _, _ := newServer(t)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/stories"},
		{http.MethodPut, "/chapters/x/schedule"},
		{http.MethodPost, "/chapters/x/publish"},
		{http.MethodPut, "/stories/x/like"},
		{http.MethodPut, "/stories/x/progress"},
	} {
		rec := doJSON(t, handler, route.method, route.path, "", map[string]string{})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.path, rec.Code)
		}
	}
}

func TestHealthz(t *testing.T) {
	handler, _, _ := newServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}
}

func TestChapterBodyHiddenUntilPublished(t *testing.T) {
	handler, _, _ := newServer(t)
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/stories", token, map[string]string{"title": "Secrets"})
	var st story.Story
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode story: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/stories/"+st.ID+"/chapters", token, map[string]any{
		"title":    "Unreleased",
		"body":     "spoiler text",
		"position": 1,
	})
	var ch chapter.Chapter
	if err := json.Unmarshal(rec.Body.Bytes(), &ch); err != nil {
		t.Fatalf("decode chapter: %v", err)
	}

	// Anonymously, the list hides the draft and the direct route must too.
	rec = doJSON(t, handler, http.MethodGet, "/stories/"+st.ID+"/chapters", "", nil)
	if got := rec.Body.String(); rec.Code != http.StatusOK || len(got) > 4 {
		t.Fatalf("anonymous list should be empty, got %d: %s", rec.Code, got)
	}
	rec = doJSON(t, handler, http.MethodGet, "/chapters/"+ch.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("anonymous direct read of a draft must 404, got %d: %s", rec.Code, rec.Body.String())
	}

	// A scheduled chapter stays hidden until its publish time arrives.
	rec = doJSON(t, handler, http.MethodPut, "/chapters/"+ch.ID+"/schedule", token, map[string]string{
		"publish_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule: status %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodGet, "/chapters/"+ch.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("anonymous read of a scheduled chapter must 404, got %d", rec.Code)
	}

	// The author still sees it.
	rec = doJSON(t, handler, http.MethodGet, "/chapters/"+ch.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("author read: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/chapters/"+ch.ID+"/publish", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish: status %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodGet, "/chapters/"+ch.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("published chapter must be public, got %d", rec.Code)
	}
	var got chapter.Chapter
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode chapter: %v", err)
	}
	if got.Body != "spoiler text" {
		t.Fatalf("unexpected body %q", got.Body)
	}
}
