package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atlasgate/atlasgate/internal/metrics"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	sent   bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.sent {
		return
	}
	s.status = code
	s.sent = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.sent {
		s.WriteHeader(http.StatusOK)
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// callerInfo is filled in by the authentication middlewares further down
// the chain so the access log can name the caller.
type callerInfo struct {
	userID    int64
	keyPrefix string
}

type callerInfoKey struct{}

// noteCaller records the authenticated caller for the access log. It is a
// no-op outside Logger.
func noteCaller(ctx context.Context, userID int64, keyPrefix string) {
	if ci, ok := ctx.Value(callerInfoKey{}).(*callerInfo); ok {
		ci.userID = userID
		ci.keyPrefix = keyPrefix
	}
}

// Logger writes one access line per request and feeds the HTTP metrics.
// Headers and query strings are never logged since they may carry
// credentials; the public key prefix is.
func Logger(logger *slog.Logger, recorder metrics.Recorder) func(http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			caller := &callerInfo{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), callerInfoKey{}, caller)))

			duration := time.Since(start)
			route := routePattern(r)
			recorder.ObserveHTTPRequest(r.Method, route, rec.status, duration)

			attrs := []slog.Attr{
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", route),
				slog.Int("status_code", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			}
			if caller.userID != 0 {
				attrs = append(attrs, slog.Int64("user_id", caller.userID))
			}
			if caller.keyPrefix != "" {
				attrs = append(attrs, slog.String("key_prefix", caller.keyPrefix))
			}

			logger.LogAttrs(r.Context(), levelForStatus(rec.status), "http request", attrs...)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// routePattern returns the matched chi pattern so metric labels stay
// bounded. Unmatched requests share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
