package users

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkpress/inkpress/internal/app/domain/user"
	"github.com/inkpress/inkpress/internal/app/storage"
	"github.com/inkpress/inkpress/internal/errors"
	"github.com/inkpress/inkpress/pkg/logger"
)

const (
	minPasswordLength = 8
	maxUsernameLength = 40
	maxBioLength      = 2000

	// DefaultSessionTTL bounds how long an issued session token stays valid.
	DefaultSessionTTL = 24 * time.Hour
)

// Service manages user registration, authentication and profiles.
type Service struct {
	store       storage.UserStore
	log         *logger.Logger
	tokenSecret []byte
	sessionTTL  time.Duration
	now         func() time.Time
}

// Option customizes service construction.
type Option func(*Service)

// WithSessionTTL overrides the default session token lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a user service. tokenSecret signs session tokens and must
// not be empty.
func New(store storage.UserStore, tokenSecret []byte, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	s := &Service{
		store:       store,
		log:         log,
		tokenSecret: tokenSecret,
		sessionTTL:  DefaultSessionTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new account after validating the username, email and
// password. Email and username uniqueness is case-insensitive.
func (s *Service) Register(ctx context.Context, username, email, password string) (user.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))

	if username == "" {
		return user.User{}, errors.InvalidInput("username is required")
	}
	if len(username) > maxUsernameLength {
		return user.User{}, errors.InvalidInput(fmt.Sprintf("username must be at most %d characters", maxUsernameLength))
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return user.User{}, errors.InvalidInput("email is not valid")
	}
	if len(password) < minPasswordLength {
		return user.User{}, errors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return user.User{}, errors.Conflict("email is already registered")
	} else if err != storage.ErrNotFound {
		return user.User{}, err
	}
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return user.User{}, errors.Conflict("username is already taken")
	} else if err != storage.ErrNotFound {
		return user.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return user.User{}, err
	}

	s.log.WithField("user_id", created.ID).Info("user registered")
	return created, nil
}

// Authenticate checks the credentials and returns a signed session token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, user.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", user.User{}, errors.InvalidInput("email and password are required")
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err == storage.ErrNotFound {
		return "", user.User{}, errors.Unauthorized("invalid credentials")
	}
	if err != nil {
		return "", user.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", user.User{}, errors.Unauthorized("invalid credentials")
	}

	token, err := s.issueToken(u.ID)
	if err != nil {
		return "", user.User{}, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return user.User{}, errors.InvalidInput("user id is required")
	}
	u, err := s.store.GetUser(ctx, id)
	if err == storage.ErrNotFound {
		return user.User{}, errors.NotFound("user")
	}
	return u, err
}

// UpdateBio replaces the caller's profile bio.
func (s *Service) UpdateBio(ctx context.Context, id, bio string) (user.User, error) {
	if len(bio) > maxBioLength {
		return user.User{}, errors.InvalidInput(fmt.Sprintf("bio must be at most %d characters", maxBioLength))
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	u.Bio = bio
	return s.store.UpdateUser(ctx, u)
}

// VerifyToken parses a session token and returns the subject user id.
func (s *Service) VerifyToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.tokenSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", errors.Unauthorized("invalid session token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.Unauthorized("invalid session token")
	}
	return sub, nil
}

func (s *Service) issueToken(userID string) (string, error) {
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
		Issuer:    "inkpress",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.tokenSecret)
}
