// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/inkpress/inkpress/internal/errors"
	"github.com/inkpress/inkpress/pkg/logger"
)

// TokenVerifier checks a session token and returns the user id it belongs to.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// AuthMiddleware authenticates requests carrying a session bearer token.
type AuthMiddleware struct {
	verifier TokenVerifier
	log      *logger.Logger
}

// NewAuthMiddleware creates an authentication middleware backed by verifier.
func NewAuthMiddleware(verifier TokenVerifier, log *logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &AuthMiddleware{verifier: verifier, log: log}
}

// Require wraps next so it only runs for authenticated requests. The caller's
// user id is stored on the request context.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, errors.Unauthorized("missing bearer token"))
			return
		}

		userID, err := m.verifier.VerifyToken(token)
		if err != nil {
			m.log.WithContext(r.Context()).WithError(err).Warn("session token rejected")
			respondError(w, err)
			return
		}

		ctx := logger.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional attaches the caller's user id when a valid token is present but
// lets anonymous requests through.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r); token != "" {
			if userID, err := m.verifier.VerifyToken(token); err == nil {
				r = r.WithContext(logger.WithUserID(r.Context(), userID))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func respondError(w http.ResponseWriter, err error) {
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
