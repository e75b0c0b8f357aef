package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/spending-tracker/internal/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		path   string
		header string
		want   int
	}{
		{name: "disabled", secret: "", path: "/api/sync", want: http.StatusOK},
		{name: "valid token", secret: "s3cret", path: "/api/sync", header: "Bearer s3cret", want: http.StatusOK},
		{name: "missing token", secret: "s3cret", path: "/api/sync", want: http.StatusUnauthorized},
		{name: "wrong token", secret: "s3cret", path: "/api/sync", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", secret: "s3cret", path: "/api/sync", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "open path", secret: "s3cret", path: "/health", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Auth(tt.secret, "/health")(okHandler())
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf)

	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		l := logger.FromContext(r.Context())
		l.Info().Msg("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})
	h := RequestID(Logger(log)(inner))

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "req-123" || rec.Header().Get("X-Request-ID") != "req-123" {
		t.Errorf("Expected request id propagated, got %q / %q", seen, rec.Header().Get("X-Request-ID"))
	}
	out := buf.String()
	if strings.Count(out, `"request_id":"req-123"`) != 2 {
		t.Errorf("Expected handler and access log lines tagged with request id, got %s", out)
	}
	if !strings.Contains(out, `"status":418`) {
		t.Errorf("Expected captured status in access log, got %s", out)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected generated request id")
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	h := Recovery(logger.NewWithWriter(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "Panic recovered") {
		t.Errorf("Expected panic logged, got %s", buf.String())
	}
}
