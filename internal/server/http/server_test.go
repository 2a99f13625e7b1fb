package httpserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/scholarvault/scholarvault-service/internal/database"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := serveHTTP(env.srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]string
	decodeBody(t, rr, &body)
	if body["status"] != "ok" || body["service"] != "ScholarVault API" {
		t.Errorf("unexpected health body: %v", body)
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected X-Correlation-ID header")
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		status database.HealthStatus
		want   int
	}{
		{"healthy", database.HealthStatus{Status: database.StatusHealthy}, http.StatusOK},
		{"unhealthy", database.HealthStatus{Status: "unhealthy", Error: "connection refused"}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(Config{}, Deps{Health: &mockHealth{status: tt.status}}, zerolog.Nop())
			rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	env := newTestEnv(t)

	rr := serveHTTP(env.srv, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	expectError(t, rr, http.StatusUnauthorized, "Missing authorization header")
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	env := newTestEnv(t)

	for _, header := range []string{"Bearer not-a-token", "Basic dXNlcjpwYXNz", env.token} {
		req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
		req.Header.Set("Authorization", header)
		rr := serveHTTP(env.srv, req)
		expectError(t, rr, http.StatusUnauthorized, "Invalid or expired token")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv := NewServer(Config{CORSAllowedOrigins: []string{"https://app.example.com"}}, Deps{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodOptions, "/api/documents", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := serveHTTP(srv, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestCORS_UnknownOrigin(t *testing.T) {
	srv := NewServer(Config{CORSAllowedOrigins: []string{"https://app.example.com"}}, Deps{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := serveHTTP(srv, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow origin, got %q", got)
	}
}

func TestBodyLimit(t *testing.T) {
	srv := NewServer(Config{MaxBodyBytes: 16}, Deps{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"someone@example.com","password":"secret"}`))
	rr := serveHTTP(srv, req)
	expectError(t, rr, http.StatusRequestEntityTooLarge, "Request body too large")
}

func TestStaticFiles(t *testing.T) {
	env := newTestEnv(t)

	stored, err := env.files.SavePDF("paper.pdf", []byte("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("SavePDF: %v", err)
	}

	if !strings.HasPrefix(stored, "uploads/") {
		t.Fatalf("stored path %q is not under the public prefix", stored)
	}

	rr := serveHTTP(env.srv, httptest.NewRequest(http.MethodGet, "/"+stored, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if string(body) != "%PDF-1.4 body" {
		t.Errorf("unexpected file body %q", body)
	}

	rr = serveHTTP(env.srv, httptest.NewRequest(http.MethodGet, "/uploads/profile_images/", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected directory listing to be refused, got %d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/api/nothing-here", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}
