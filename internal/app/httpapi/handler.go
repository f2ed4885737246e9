// Package httpapi exposes the application services as a REST API.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	app "github.com/inkpress/inkpress/internal/app"
	"github.com/inkpress/inkpress/internal/app/domain/story"
	"github.com/inkpress/inkpress/internal/app/metrics"
	"github.com/inkpress/inkpress/internal/errors"
	"github.com/inkpress/inkpress/internal/middleware"
	"github.com/inkpress/inkpress/pkg/logger"
)

// Pinger reports whether the persistence backend is reachable.
type Pinger interface {
	Ping() error
}

// Deps carries the cross-cutting pieces the router needs besides the
// application itself.
type Deps struct {
	Auth         *middleware.AuthMiddleware
	Trigger      *middleware.TriggerAuth
	Registration *middleware.RateLimitMiddleware
	CORS         *middleware.CORSMiddleware
	DB           Pinger
	Log          *logger.Logger
}

type handler struct {
	app *app.Application
	db  Pinger
	log *logger.Logger
}

// NewHandler returns the router exposing the REST API.
func NewHandler(application *app.Application, deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, db: deps.DB, log: log}

	r := mux.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware(log).Handler)
	r.Use(metrics.InstrumentHandler)
	if deps.CORS != nil {
		r.Use(deps.CORS.Handler)
	}

	auth := deps.Auth

	// Accounts and sessions.
	register := http.Handler(http.HandlerFunc(h.registerUser))
	if deps.Registration != nil {
		register = deps.Registration.Handler(register)
	}
	r.Handle("/users", register).Methods(http.MethodPost)
	r.HandleFunc("/sessions", h.createSession).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}", h.getUser).Methods(http.MethodGet)
	r.Handle("/users/{id}", auth.Require(http.HandlerFunc(h.updateUser))).Methods(http.MethodPatch)

	// Stories.
	r.Handle("/stories", auth.Require(http.HandlerFunc(h.createStory))).Methods(http.MethodPost)
	r.HandleFunc("/stories", h.listStories).Methods(http.MethodGet)
	r.HandleFunc("/stories/{id}", h.getStory).Methods(http.MethodGet)
	r.Handle("/stories/{id}", auth.Require(http.HandlerFunc(h.updateStory))).Methods(http.MethodPatch)
	r.Handle("/stories/{id}", auth.Require(http.HandlerFunc(h.deleteStory))).Methods(http.MethodDelete)

	// Chapters.
	r.Handle("/stories/{id}/chapters", auth.Require(http.HandlerFunc(h.createChapter))).Methods(http.MethodPost)
	r.Handle("/stories/{id}/chapters", auth.Optional(http.HandlerFunc(h.listChapters))).Methods(http.MethodGet)
	r.Handle("/chapters/{id}", auth.Optional(http.HandlerFunc(h.getChapter))).Methods(http.MethodGet)
	r.Handle("/chapters/{id}", auth.Require(http.HandlerFunc(h.updateChapter))).Methods(http.MethodPatch)
	r.Handle("/chapters/{id}", auth.Require(http.HandlerFunc(h.deleteChapter))).Methods(http.MethodDelete)
	r.Handle("/chapters/{id}/schedule", auth.Require(http.HandlerFunc(h.scheduleChapter))).Methods(http.MethodPut)
	r.Handle("/chapters/{id}/schedule", auth.Require(http.HandlerFunc(h.clearSchedule))).Methods(http.MethodDelete)
	r.Handle("/chapters/{id}/publish", auth.Require(http.HandlerFunc(h.publishChapter))).Methods(http.MethodPost)
	r.Handle("/chapters/{id}/private", auth.Require(http.HandlerFunc(h.privateChapter))).Methods(http.MethodPost)

	// Scheduled publish trigger.
	r.Handle("/publish-scheduled", deps.Trigger.Require(http.HandlerFunc(h.triggerPublish))).Methods(http.MethodPost)
	r.HandleFunc("/publish-scheduled", h.publishStatus).Methods(http.MethodGet)

	// Engagement.
	r.Handle("/chapters/{id}/comments", auth.Require(http.HandlerFunc(h.createComment))).Methods(http.MethodPost)
	r.HandleFunc("/chapters/{id}/comments", h.listComments).Methods(http.MethodGet)
	r.Handle("/comments/{id}", auth.Require(http.HandlerFunc(h.deleteComment))).Methods(http.MethodDelete)
	r.Handle("/stories/{id}/like", auth.Require(http.HandlerFunc(h.likeStory))).Methods(http.MethodPut)
	r.Handle("/stories/{id}/like", auth.Require(http.HandlerFunc(h.unlikeStory))).Methods(http.MethodDelete)
	r.HandleFunc("/stories/{id}/likes", h.likeCount).Methods(http.MethodGet)
	r.Handle("/stories/{id}/review", auth.Require(http.HandlerFunc(h.reviewStory))).Methods(http.MethodPut)
	r.HandleFunc("/stories/{id}/reviews", h.listReviews).Methods(http.MethodGet)

	// Reading progress.
	r.Handle("/stories/{id}/progress", auth.Require(http.HandlerFunc(h.setProgress))).Methods(http.MethodPut)
	r.Handle("/stories/{id}/progress", auth.Require(http.HandlerFunc(h.getProgress))).Methods(http.MethodGet)

	// Operational endpoints.
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

// --- users ---------------------------------------------------------------

func (h *handler) registerUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	u, err := h.app.Users.Register(r.Context(), payload.Username, payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	token, u, err := h.app.Users.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  u,
	})
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id != logger.UserID(r.Context()) {
		writeError(w, errors.Forbidden("users may only update their own profile"))
		return
	}

	var payload struct {
		Bio string `json:"bio"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	u, err := h.app.Users.UpdateBio(r.Context(), id, payload.Bio)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// --- stories --------------------------------------------------------------

func (h *handler) createStory(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	st, err := h.app.Stories.Create(r.Context(), logger.UserID(r.Context()), payload.Title, payload.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *handler) listStories(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Stories.List(r.Context(), r.URL.Query().Get("author"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getStory(w http.ResponseWriter, r *http.Request) {
	st, err := h.app.Stories.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) updateStory(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Status      string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	st, err := h.app.Stories.Update(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"],
		payload.Title, payload.Description, story.Status(payload.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) deleteStory(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Stories.Delete(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- chapters ---------------------------------------------------------------

func (h *handler) createChapter(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title    string `json:"title"`
		Body     string `json:"body"`
		Position int    `json:"position"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	ch, err := h.app.Chapters.Create(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"],
		payload.Title, payload.Body, payload.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (h *handler) listChapters(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Chapters.List(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getChapter(w http.ResponseWriter, r *http.Request) {
	ch, err := h.app.Chapters.Get(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *handler) updateChapter(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title    string `json:"title"`
		Body     string `json:"body"`
		Position int    `json:"position"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	ch, err := h.app.Chapters.Update(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"],
		payload.Title, payload.Body, payload.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *handler) deleteChapter(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Chapters.Delete(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) scheduleChapter(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PublishAt string `json:"publish_at"`
		Timezone  string `json:"timezone"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	publishAt, err := time.Parse(time.RFC3339, payload.PublishAt)
	if err != nil {
		writeError(w, errors.InvalidInput("publish_at must be an RFC 3339 timestamp"))
		return
	}

	ch, err := h.app.Chapters.Schedule(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"],
		publishAt, payload.Timezone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *handler) clearSchedule(w http.ResponseWriter, r *http.Request) {
	ch, err := h.app.Chapters.ClearSchedule(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *handler) publishChapter(w http.ResponseWriter, r *http.Request) {
	ch, err := h.app.Chapters.PublishNow(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *handler) privateChapter(w http.ResponseWriter, r *http.Request) {
	ch, err := h.app.Chapters.SetPrivate(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// --- scheduled publish trigger ------------------------------------------------

func (h *handler) triggerPublish(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.Publisher.Reconcile(r.Context())
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("scheduled publish pass failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "publish pass failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"published": summary.Published,
		"message":   fmt.Sprintf("published %d chapter(s)", summary.Published),
	})
}

func (h *handler) publishStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.Publisher.Reconcile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- engagement ----------------------------------------------------------------

func (h *handler) createComment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	c, err := h.app.Social.Comment(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"], payload.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) listComments(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Social.ListComments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Social.DeleteComment(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) likeStory(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Social.Like(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) unlikeStory(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Social.Unlike(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) likeCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.app.Social.LikeCount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"likes": count})
}

func (h *handler) reviewStory(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Rating int    `json:"rating"`
		Body   string `json:"body"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	review, err := h.app.Social.Review(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"],
		payload.Rating, payload.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *handler) listReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Social.ListReviews(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// --- reading progress -------------------------------------------------------------

func (h *handler) setProgress(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ChapterID string `json:"chapter_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.InvalidInput(err.Error()))
		return
	}

	p, err := h.app.Progress.Set(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"], payload.ChapterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) getProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Progress.Get(r.Context(), logger.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- operational -------------------------------------------------------------------

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers --------------------------------------------------------------------

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("request failed", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.HTTPStatus(serviceErr))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": serviceErr.Message,
		"code":  serviceErr.Code,
	})
}
