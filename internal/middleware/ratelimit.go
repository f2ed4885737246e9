package middleware

import (
	"net"
	"net/http"

	"github.com/inkpress/inkpress/internal/app/metrics"
	"github.com/inkpress/inkpress/internal/errors"
	"github.com/inkpress/inkpress/internal/ratelimit"
	"github.com/inkpress/inkpress/pkg/logger"
)

// RateLimitMiddleware throttles requests per client using the configured
// limiter. Authenticated callers are keyed by user id, anonymous ones by
// client IP.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	limit   int
	window  string
	log     *logger.Logger
}

// NewRateLimitMiddleware creates a throttling middleware. limit and window
// only describe the policy in error responses; enforcement lives in limiter.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, limit int, window string, log *logger.Logger) *RateLimitMiddleware {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		log:     log,
	}
}

// Handler wraps next with the rate limit check.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := logger.UserID(r.Context())
		if key == "" {
			key = clientIP(r)
		}

		allowed, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			// A broken limiter backend must not take the API down.
			m.log.WithContext(r.Context()).WithError(err).Warn("rate limiter unavailable, allowing request")
			allowed = true
		}
		if !allowed {
			m.log.WithContext(r.Context()).
				WithField("key", key).
				WithField("path", r.URL.Path).
				Warn("request throttled")
			metrics.RecordRegistrationThrottled()
			respondError(w, errors.RateLimitExceeded(m.limit, m.window))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
