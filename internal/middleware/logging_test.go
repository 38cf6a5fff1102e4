package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/atlasgate/atlasgate/internal/metrics"
)

// TestLogging_NoCredentialsLogged ensures keys, session tokens and query
// strings never reach the request log.
func TestLogging_NoCredentialsLogged(t *testing.T) {
	t.Parallel()

	secrets := []string{
		"ak_0123abcd_0123456789abcdef0123456789abcdef",
		"eyJhbGciOiJIUzI1NiJ9.session.token",
		"csrf-3f0c9a",
		"Bearer",
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Logger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/country?name=France&api_key="+secrets[0], nil)
	req.Header.Set("X-API-Key", secrets[0])
	req.Header.Set("Authorization", "Bearer "+secrets[1])
	req.AddCookie(&http.Cookie{Name: "csrf-token", Value: secrets[2]})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, s := range secrets {
		if strings.Contains(out, s) {
			t.Errorf("log output contains %q", s)
		}
	}
}

func TestLogging_BasicFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := RequestID(Logger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/keys", nil)
	req.Header.Set("User-Agent", "TestBrowser/2.0")
	req.Header.Set(RequestIDHeader, "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, field := range []string{
		`"method":"POST"`,
		`"path":"/api/keys"`,
		`"status_code":201`,
		`"user_agent":"TestBrowser/2.0"`,
		`"request_id":"req-123"`,
	} {
		if !strings.Contains(out, field) {
			t.Errorf("expected log field %s in %s", field, out)
		}
	}
}

func TestLogging_StatusLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		wantLevel  string
	}{
		{"success", http.StatusOK, "INFO"},
		{"unauthorized", http.StatusUnauthorized, "WARN"},
		{"quota", http.StatusTooManyRequests, "WARN"},
		{"internal error", http.StatusInternalServerError, "ERROR"},
		{"bad gateway", http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			handler := Logger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

			if !strings.Contains(buf.String(), `"level":"`+tt.wantLevel+`"`) {
				t.Errorf("want level %s for status %d, got %s", tt.wantLevel, tt.statusCode, buf.String())
			}
		})
	}
}

func TestLogging_RecordsRoutePattern(t *testing.T) {
	t.Parallel()

	rec := metrics.NewInMemory()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(Logger(logger, rec))
	r.Delete("/api/keys/{keyId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/keys/42", nil))

	if !strings.Contains(buf.String(), `"route":"/api/keys/{keyId}"`) {
		t.Errorf("route pattern missing from %s", buf.String())
	}
	snap := rec.Snapshot()
	if snap.HTTPRequests != 1 || snap.HTTPServerErrors != 1 {
		t.Errorf("http metrics = %d/%d, want 1/1", snap.HTTPRequests, snap.HTTPServerErrors)
	}
}

func TestStatusRecorder(t *testing.T) {
	t.Parallel()

	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _ = rec.Write([]byte("hello"))
	_, _ = rec.Write([]byte(" world"))
	if rec.status != http.StatusOK || rec.bytes != 11 {
		t.Errorf("implicit write: status=%d bytes=%d, want 200/11", rec.status, rec.bytes)
	}

	rec = &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	rec.WriteHeader(http.StatusCreated)
	rec.WriteHeader(http.StatusInternalServerError)
	if rec.status != http.StatusCreated {
		t.Errorf("status after second WriteHeader = %d, want 201", rec.status)
	}
}

func TestLogging_NamesAuthenticatedCaller(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	chain := Logger(logger, nil)(APIKeyAuth(AuthConfig{Logger: discardLogger, Keys: fakeKeys{}})(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/api/country?name=Peru", nil)
	req.Header.Set(APIKeyHeader, validKey)
	chain.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, field := range []string{`"user_id":7`, `"key_prefix":"0123abcd"`} {
		if !strings.Contains(out, field) {
			t.Errorf("expected %s in %s", field, out)
		}
	}
	if strings.Contains(out, validKey) {
		t.Error("full API key leaked into the access log")
	}

	// Anonymous requests carry neither field.
	buf.Reset()
	chain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/country", nil))
	if strings.Contains(buf.String(), "user_id") || strings.Contains(buf.String(), "key_prefix") {
		t.Errorf("anonymous request logged a caller: %s", buf.String())
	}
}

func TestNoteCaller_OutsideLogger(t *testing.T) {
	t.Parallel()
	noteCaller(context.Background(), 1, "abcd0123")
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated", "", false},
		{"reused", "abc-123_X.y", true},
		{"rejected injection", "abc\ninjected", false},
		{"rejected long", strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.incoming != "" {
			req.Header.Set(RequestIDHeader, tt.incoming)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
			t.Errorf("%s: context id %q, header %q", tt.name, seen, rec.Header().Get(RequestIDHeader))
		}
		if (seen == tt.incoming) != tt.keep {
			t.Errorf("%s: id = %q, keep incoming = %v", tt.name, seen, tt.keep)
		}
	}
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"INTERNAL_ERROR"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "handler panic") || !strings.Contains(buf.String(), `"endpoint":"GET /"`) {
		t.Errorf("panic should be logged with its endpoint, got %s", buf.String())
	}
}

func TestRecoverer_ReraisesAbort(t *testing.T) {
	t.Parallel()

	handler := Recoverer(discardLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", v)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
