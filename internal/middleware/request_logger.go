package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/levifans/backend/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// statusRecorder remembers the first status written and counts body bytes.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) written() bool { return s.status != 0 }

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// requestID reuses a well-formed incoming id so ids line up with the CDN logs.
func requestID(r *http.Request) string {
	if id := r.Header.Get(requestIDHeader); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	return uuid.NewString()
}

// RequestLogger attaches a request-scoped logger and request id to the context,
// echoes the id in the response, turns panics into 500s and logs one line per
// request.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := requestID(r)
			w.Header().Set(requestIDHeader, id)

			logger := base.With(
				slog.String("request_id", id),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("content_type", r.URL.Query().Get("type")),
				slog.String("remote_addr", r.RemoteAddr),
			)
			ctx := logging.WithRequestID(logging.WithLogger(r.Context(), logger), id)
			rec := &statusRecorder{ResponseWriter: w}

			defer func() {
				if p := recover(); p != nil {
					logger.Error("panic recovered", "panic", p)
					if !rec.written() {
						http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					}
				}
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed",
					slog.Int("status", rec.code()),
					slog.Int("bytes", rec.bytes),
					slog.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(rec, r.WithContext(ctx))
		})
	}
}
