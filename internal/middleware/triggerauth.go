package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/inkpress/inkpress/pkg/logger"
)

// TriggerAuth guards the scheduled-publish trigger endpoint with a shared
// secret. The secret is compared in constant time, and rejection happens
// before any handler or store code runs.
type TriggerAuth struct {
	secret []byte
	log    *logger.Logger
}

// NewTriggerAuth creates a trigger guard for the given shared secret.
func NewTriggerAuth(secret string, log *logger.Logger) *TriggerAuth {
	if log == nil {
		log = logger.NewDefault("triggerauth")
	}
	return &TriggerAuth{secret: []byte(secret), log: log}
}

// Require wraps next so it only runs when the request carries the configured
// bearer secret.
func (t *TriggerAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := bearerToken(r)
		if len(t.secret) == 0 ||
			subtle.ConstantTimeCompare([]byte(presented), t.secret) != 1 {
			t.log.WithContext(r.Context()).
				WithField("remote_addr", r.RemoteAddr).
				Warn("publish trigger rejected")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
