package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/inkpress/pkg/logger"
)

// RequestIDMiddleware stamps every request with an identifier so log lines
// belonging to one request can be correlated.
type RequestIDMiddleware struct {
	log *logger.Logger
}

// NewRequestIDMiddleware creates a request-id middleware.
func NewRequestIDMiddleware(log *logger.Logger) *RequestIDMiddleware {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &RequestIDMiddleware{log: log}
}

// Handler returns the middleware handler. An inbound X-Request-ID header is
// honored, otherwise a fresh identifier is generated; either way the id is
// stored on the request context and echoed back in the response header.
func (m *RequestIDMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)

		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))

		m.log.WithContext(ctx).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", rw.status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Debug("request handled")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
