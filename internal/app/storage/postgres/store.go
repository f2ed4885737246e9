// Package postgres implements the storage interfaces on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/inkpress/inkpress/internal/app/domain/chapter"
	"github.com/inkpress/inkpress/internal/app/domain/progress"
	"github.com/inkpress/inkpress/internal/app/domain/social"
	"github.com/inkpress/inkpress/internal/app/domain/story"
	"github.com/inkpress/inkpress/internal/app/domain/user"
	"github.com/inkpress/inkpress/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.StoryStore = (*Store)(nil)
var _ storage.ChapterStore = (*Store)(nil)
var _ storage.SocialStore = (*Store)(nil)
var _ storage.ProgressStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// --- row types ---------------------------------------------------------------

type userRow struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Bio          string    `db:"bio"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) domain() user.User {
	return user.User(r)
}

type storyRow struct {
	ID          string    `db:"id"`
	AuthorID    string    `db:"author_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Status      string    `db:"status"`
	TotalWords  int       `db:"total_words"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r storyRow) domain() story.Story {
	return story.Story{
		ID:          r.ID,
		AuthorID:    r.AuthorID,
		Title:       r.Title,
		Description: r.Description,
		Status:      story.Status(r.Status),
		TotalWords:  r.TotalWords,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type chapterRow struct {
	ID          string       `db:"id"`
	StoryID     string       `db:"story_id"`
	Title       string       `db:"title"`
	Body        string       `db:"body"`
	WordCount   int          `db:"word_count"`
	Position    int          `db:"sort_order"`
	Status      string       `db:"status"`
	ScheduledAt sql.NullTime `db:"scheduled_at"`
	Timezone    string       `db:"timezone"`
	PublishedAt sql.NullTime `db:"published_at"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

func (r chapterRow) domain() chapter.Chapter {
	ch := chapter.Chapter{
		ID:        r.ID,
		StoryID:   r.StoryID,
		Title:     r.Title,
		Body:      r.Body,
		WordCount: r.WordCount,
		Position:  r.Position,
		Status:    chapter.Status(r.Status),
		Timezone:  r.Timezone,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ScheduledAt.Valid {
		ch.ScheduledAt = r.ScheduledAt.Time.UTC()
	}
	if r.PublishedAt.Valid {
		ch.PublishedAt = r.PublishedAt.Time.UTC()
	}
	return ch
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// --- UserStore ----------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, bio, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.Bio, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}

	u.Username = existing.Username
	u.Email = existing.Email
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, bio = $3, updated_at = $4
		WHERE id = $1
	`, u.ID, u.PasswordHash, u.Bio, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, email, password_hash, bio, created_at, updated_at
		FROM users WHERE id = $1
	`, id)
	if err != nil {
		return user.User{}, mapNoRows(err)
	}
	return row.domain(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, email, password_hash, bio, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)
	`, email)
	if err != nil {
		return user.User{}, mapNoRows(err)
	}
	return row.domain(), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, email, password_hash, bio, created_at, updated_at
		FROM users WHERE lower(username) = lower($1)
	`, username)
	if err != nil {
		return user.User{}, mapNoRows(err)
	}
	return row.domain(), nil
}

// --- StoryStore -----------------------------------------------------------------

func (s *Store) CreateStory(ctx context.Context, st story.Story) (story.Story, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stories (id, author_id, title, description, status, total_words, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, st.ID, st.AuthorID, st.Title, st.Description, string(st.Status), st.TotalWords, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return story.Story{}, err
	}
	return st, nil
}

func (s *Store) UpdateStory(ctx context.Context, st story.Story) (story.Story, error) {
	existing, err := s.GetStory(ctx, st.ID)
	if err != nil {
		return story.Story{}, err
	}

	st.AuthorID = existing.AuthorID
	st.CreatedAt = existing.CreatedAt
	st.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE stories
		SET title = $2, description = $3, status = $4, total_words = $5, updated_at = $6
		WHERE id = $1
	`, st.ID, st.Title, st.Description, string(st.Status), st.TotalWords, st.UpdatedAt)
	if err != nil {
		return story.Story{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return story.Story{}, storage.ErrNotFound
	}
	return st, nil
}

func (s *Store) GetStory(ctx context.Context, id string) (story.Story, error) {
	var row storyRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, author_id, title, description, status, total_words, created_at, updated_at
		FROM stories WHERE id = $1
	`, id)
	if err != nil {
		return story.Story{}, mapNoRows(err)
	}
	return row.domain(), nil
}

func (s *Store) ListStories(ctx context.Context, authorID string) ([]story.Story, error) {
	var rows []storyRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, author_id, title, description, status, total_words, created_at, updated_at
		FROM stories
		WHERE $1 = '' OR author_id = $1
		ORDER BY created_at
	`, authorID)
	if err != nil {
		return nil, err
	}

	result := make([]story.Story, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.domain())
	}
	return result, nil
}

func (s *Store) DeleteStory(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) RecomputeStoryWords(ctx context.Context, storyID string) (int, error) {
	var total int
	err := s.db.GetContext(ctx, &total, `
		UPDATE stories
		SET total_words = (
			SELECT COALESCE(SUM(word_count), 0)
			FROM chapters
			WHERE story_id = $1 AND status = 'published'
		), updated_at = $2
		WHERE id = $1
		RETURNING total_words
	`, storyID, time.Now().UTC())
	if err != nil {
		return 0, mapNoRows(err)
	}
	return total, nil
}

// --- ChapterStore ---------------------------------------------------------------

const chapterColumns = `id, story_id, title, body, word_count, sort_order, status, scheduled_at, timezone, published_at, created_at, updated_at`

func (s *Store) CreateChapter(ctx context.Context, ch chapter.Chapter) (chapter.Chapter, error) {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ch.CreatedAt = now
	ch.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chapters (`+chapterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, ch.ID, ch.StoryID, ch.Title, ch.Body, ch.WordCount, ch.Position, string(ch.Status),
		toNullTime(ch.ScheduledAt), ch.Timezone, toNullTime(ch.PublishedAt), ch.CreatedAt, ch.UpdatedAt)
	if err != nil {
		return chapter.Chapter{}, err
	}
	return ch, nil
}

func (s *Store) UpdateChapter(ctx context.Context, ch chapter.Chapter) (chapter.Chapter, error) {
	existing, err := s.GetChapter(ctx, ch.ID)
	if err != nil {
		return chapter.Chapter{}, err
	}

	ch.StoryID = existing.StoryID
	ch.CreatedAt = existing.CreatedAt
	ch.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE chapters
		SET title = $2, body = $3, word_count = $4, sort_order = $5, status = $6,
		    scheduled_at = $7, timezone = $8, published_at = $9, updated_at = $10
		WHERE id = $1
	`, ch.ID, ch.Title, ch.Body, ch.WordCount, ch.Position, string(ch.Status),
		toNullTime(ch.ScheduledAt), ch.Timezone, toNullTime(ch.PublishedAt), ch.UpdatedAt)
	if err != nil {
		return chapter.Chapter{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return chapter.Chapter{}, storage.ErrNotFound
	}
	return ch, nil
}

func (s *Store) GetChapter(ctx context.Context, id string) (chapter.Chapter, error) {
	var row chapterRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+chapterColumns+` FROM chapters WHERE id = $1
	`, id)
	if err != nil {
		return chapter.Chapter{}, mapNoRows(err)
	}
	return row.domain(), nil
}

func (s *Store) ListChapters(ctx context.Context, storyID string) ([]chapter.Chapter, error) {
	var rows []chapterRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+chapterColumns+` FROM chapters
		WHERE story_id = $1
		ORDER BY sort_order, created_at
	`, storyID)
	if err != nil {
		return nil, err
	}

	result := make([]chapter.Chapter, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.domain())
	}
	return result, nil
}

func (s *Store) DeleteChapter(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chapters WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListDueChapters(ctx context.Context, now time.Time, limit int) ([]chapter.Chapter, error) {
	var rows []chapterRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+chapterColumns+` FROM chapters
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}

	result := make([]chapter.Chapter, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.domain())
	}
	return result, nil
}

// ClaimScheduledChapter performs the conditional update that guarantees a
// chapter transitions scheduled -> published at most once even when several
// reconciliation passes race on it.
func (s *Store) ClaimScheduledChapter(ctx context.Context, id string, publishedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chapters
		SET status = 'published', published_at = $2, updated_at = $3
		WHERE id = $1 AND status = 'scheduled'
	`, id, publishedAt.UTC(), time.Now().UTC())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// --- SocialStore ----------------------------------------------------------------

func (s *Store) CreateComment(ctx context.Context, c social.Comment) (social.Comment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, chapter_id, user_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.ChapterID, c.UserID, c.Body, c.CreatedAt)
	if err != nil {
		return social.Comment{}, err
	}
	return c, nil
}

func (s *Store) GetComment(ctx context.Context, id string) (social.Comment, error) {
	var c social.Comment
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chapter_id, user_id, body, created_at
		FROM comments WHERE id = $1
	`, id)
	if err := row.Scan(&c.ID, &c.ChapterID, &c.UserID, &c.Body, &c.CreatedAt); err != nil {
		return social.Comment{}, mapNoRows(err)
	}
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, chapterID string) ([]social.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chapter_id, user_id, body, created_at
		FROM comments
		WHERE chapter_id = $1
		ORDER BY created_at
	`, chapterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []social.Comment
	for rows.Next() {
		var c social.Comment
		if err := rows.Scan(&c.ID, &c.ChapterID, &c.UserID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) DeleteComment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AddLike(ctx context.Context, storyID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO story_likes (story_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (story_id, user_id) DO NOTHING
	`, storyID, userID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *Store) RemoveLike(ctx context.Context, storyID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM story_likes WHERE story_id = $1 AND user_id = $2
	`, storyID, userID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *Store) CountLikes(ctx context.Context, storyID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM story_likes WHERE story_id = $1
	`, storyID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) UpsertReview(ctx context.Context, r social.Review) (social.Review, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.UpdatedAt = now

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO story_reviews (id, story_id, user_id, rating, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (story_id, user_id) DO UPDATE
		SET rating = EXCLUDED.rating, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, r.ID, r.StoryID, r.UserID, r.Rating, r.Body, now)
	if err := row.Scan(&r.ID, &r.CreatedAt); err != nil {
		return social.Review{}, err
	}
	return r, nil
}

func (s *Store) ListReviews(ctx context.Context, storyID string) ([]social.Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, story_id, user_id, rating, body, created_at, updated_at
		FROM story_reviews
		WHERE story_id = $1
		ORDER BY created_at
	`, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []social.Review
	for rows.Next() {
		var r social.Review
		if err := rows.Scan(&r.ID, &r.StoryID, &r.UserID, &r.Rating, &r.Body, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// --- ProgressStore --------------------------------------------------------------

func (s *Store) UpsertProgress(ctx context.Context, p progress.Progress) (progress.Progress, error) {
	p.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_progress (user_id, story_id, chapter_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, story_id) DO UPDATE
		SET chapter_id = EXCLUDED.chapter_id, updated_at = EXCLUDED.updated_at
	`, p.UserID, p.StoryID, p.ChapterID, p.UpdatedAt)
	if err != nil {
		return progress.Progress{}, err
	}
	return p, nil
}

func (s *Store) GetProgress(ctx context.Context, userID, storyID string) (progress.Progress, error) {
	var p progress.Progress
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, story_id, chapter_id, updated_at
		FROM reading_progress
		WHERE user_id = $1 AND story_id = $2
	`, userID, storyID)
	if err := row.Scan(&p.UserID, &p.StoryID, &p.ChapterID, &p.UpdatedAt); err != nil {
		return progress.Progress{}, mapNoRows(err)
	}
	return p, nil
}
