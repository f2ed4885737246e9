package users

import (
	"context"
	"testing"
	"time"

	"github.com/inkpress/inkpress/internal/app/storage/memory"
	"github.com/inkpress/inkpress/internal/errors"
)

var testSecret = []byte("test-secret")

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := New(memory.New(), testSecret, nil)

	u, err := svc.Register(context.Background(), "maya", "maya@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.ID == "" {
		t.Fatalf("expected id to be generated")
	}
	if u.PasswordHash == "correct horse battery" {
		t.Fatalf("password must not be stored in plaintext")
	}

	token, got, err := svc.Authenticate(context.Background(), "maya@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("authenticated wrong user")
	}

	userID, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if userID != u.ID {
		t.Fatalf("token subject mismatch: %s != %s", userID, u.ID)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc := New(memory.New(), testSecret, nil)

	if _, err := svc.Register(context.Background(), "maya", "maya@example.com", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := svc.Register(context.Background(), "other", "MAYA@example.com", "password123")
	if serviceErr := errors.GetServiceError(err); serviceErr == nil || serviceErr.Code != errors.CodeConflict {
		t.Fatalf("case-insensitive duplicate email should conflict, got %v", err)
	}

	_, err = svc.Register(context.Background(), "Maya", "new@example.com", "password123")
	if serviceErr := errors.GetServiceError(err); serviceErr == nil || serviceErr.Code != errors.CodeConflict {
		t.Fatalf("case-insensitive duplicate username should conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := New(memory.New(), testSecret, nil)

	cases := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"empty username", "", "a@example.com", "password123"},
		{"bad email", "maya", "not-an-email", "password123"},
		{"short password", "maya", "a@example.com", "short"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(context.Background(), tc.username, tc.email, tc.password); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestAuthenticateBadCredentials(t *testing.T) {
	svc := New(memory.New(), testSecret, nil)
	if _, err := svc.Register(context.Background(), "maya", "maya@example.com", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, err := svc.Authenticate(context.Background(), "maya@example.com", "wrong")
	if serviceErr := errors.GetServiceError(err); serviceErr == nil || serviceErr.Code != errors.CodeUnauthorized {
		t.Fatalf("wrong password should be unauthorized, got %v", err)
	}

	_, _, err = svc.Authenticate(context.Background(), "nobody@example.com", "password123")
	if serviceErr := errors.GetServiceError(err); serviceErr == nil || serviceErr.Code != errors.CodeUnauthorized {
		t.Fatalf("unknown email should be unauthorized, got %v", err)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	svc := New(memory.New(), testSecret, nil,
		WithSessionTTL(time.Hour),
		WithClock(func() time.Time { return past }))

	u, err := svc.Register(context.Background(), "maya", "maya@example.com", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token, _, err := svc.Authenticate(context.Background(), "maya@example.com", "password123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	_ = u

	if _, err := svc.VerifyToken(token); err == nil {
		t.Fatalf("expired token must be rejected")
	}
}

func TestUpdateBio(t *testing.T) {
	svc := New(memory.New(), testSecret, nil)
	u, err := svc.Register(context.Background(), "maya", "maya@example.com", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	updated, err := svc.UpdateBio(context.Background(), u.ID, "writes at night")
	if err != nil {
		t.Fatalf("update bio: %v", err)
	}
	if updated.Bio != "writes at night" {
		t.Fatalf("bio not updated: %q", updated.Bio)
	}
}
