package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"lerian-mcp-conflicts/internal/logging"
)

func TestLoggingMiddleware_PropagatesRequestID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	h := NewLoggingMiddleware(nil).Handler()(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conflicts/x", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestLoggingMiddleware_GeneratesRequestID(t *testing.T) {
	h := NewLoggingMiddleware(logging.NewNoOpLogger()).Handler()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := NewCORSMiddlewareForOrigins([]string{"https://app.example.com", "*.lerian.dev"}).Handler()(next)

	tests := []struct {
		name    string
		method  string
		origin  string
		status  int
		allowed string
	}{
		{"exact origin", http.MethodGet, "https://app.example.com", http.StatusOK, "https://app.example.com"},
		{"wildcard subdomain", http.MethodGet, "https://ui.lerian.dev", http.StatusOK, "https://ui.lerian.dev"},
		{"foreign origin", http.MethodGet, "https://evil.example.org", http.StatusOK, ""},
		{"suffix without dot", http.MethodGet, "https://evillerian.dev", http.StatusOK, ""},
		{"preflight allowed", http.MethodOptions, "https://app.example.com", http.StatusNoContent, "https://app.example.com"},
		{"preflight rejected", http.MethodOptions, "https://evil.example.org", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/analytics", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.allowed, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSMiddleware_PreflightHeaders(t *testing.T) {
	h := NewCORSMiddlewareForOrigins([]string{"*"}).Handler()(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/conflicts/detect", nil)
	req.Header.Set("Origin", "https://editor.example.com")
	req.Header.Set("Access-Control-Request-Headers", "content-type, x-request-id")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "content-type, x-request-id", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "Accept, Content-Type, X-Request-ID", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSMiddleware_DefaultsToLocalOrigins(t *testing.T) {
	c := NewCORSMiddlewareForOrigins(nil)
	assert.True(t, c.isOriginAllowed("http://localhost:3000"))
	assert.False(t, c.isOriginAllowed("https://example.com"))
}
