package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatboard/internal/models"
)

func newTestLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(client, zerolog.Nop(), cfg)
}

func TestFindLimitPrefersLongestPattern(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{})

	tests := []struct {
		method, path string
		pattern      string
	}{
		{"POST", "/rooms", "POST /rooms"},
		{"POST", "/rooms/default/lobby/messages", "POST /rooms/"},
		{"POST", "/auth/verify/resend", "POST /auth/verify/resend"},
		{"POST", "/auth/verify", "POST /auth/verify"},
		{"GET", "/rooms/default/lobby", "GET /rooms"},
		{"GET", "/health", ""},
	}
	for _, tt := range tests {
		limit := rl.findLimit(httptest.NewRequest(tt.method, tt.path, nil))
		got := ""
		if limit != nil {
			got = limit.pattern
		}
		if got != tt.pattern {
			t.Errorf("%s %s: expected %q, got %q", tt.method, tt.path, tt.pattern, got)
		}
	}
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// POST /rooms allows 10 per hour per session
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("POST", "/rooms", nil)
		req.Header.Set("Authorization", "Bearer session-a")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/rooms", nil)
	req.Header.Set("Authorization", "Bearer session-a")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}

	// Another session has its own budget
	req = httptest.NewRequest("POST", "/rooms", nil)
	req.Header.Set("Authorization", "Bearer session-b")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other session: expected 200, got %d", rec.Code)
	}
}

func TestWhitelist(t *testing.T) {
	rl := newTestLimiter(t, RateLimiterConfig{Whitelist: []string{"10.0.0.0/8", "192.168.1.5", "not-a-cidr/99"}})

	tests := map[string]bool{
		"10.1.2.3":    true,
		"192.168.1.5": true,
		"192.168.1.6": false,
		"garbage":     false,
	}
	for ip, want := range tests {
		if got := rl.isWhitelisted(ip); got != want {
			t.Errorf("%s: expected %v, got %v", ip, want, got)
		}
	}
}

func TestIPBlocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	b := NewIPBlocker(client)
	ctx := context.Background()

	b.Block(ctx, "1.2.3.4", time.Minute, "test")
	if !b.IsBlocked(ctx, "1.2.3.4") {
		t.Fatal("expected blocked")
	}
	mr.FastForward(2 * time.Minute)
	if b.IsBlocked(ctx, "1.2.3.4") {
		t.Fatal("block should expire")
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":               "",
		"Bearer abc":     "abc",
		"bearer  abc ":   "abc",
		"Basic dXNlcjpw": "",
		"Bearer":         "",
	}
	for header, want := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := BearerToken(req); got != want {
			t.Errorf("%q: expected %q, got %q", header, want, got)
		}
	}
}

func TestRequireVerified(t *testing.T) {
	handler := RequireVerified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name    string
		account *models.Account
		status  int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"unverified", &models.Account{Email: "a@example.com"}, http.StatusForbidden},
		{"verified", &models.Account{Email: "a@example.com", EmailVerified: true}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/rooms", nil)
			if tt.account != nil {
				req = req.WithContext(context.WithValue(req.Context(), AccountContextKey, tt.account))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/health":                                    "/health",
		"/users/0192":                                "/users/:id",
		"/attachments/01HX":                          "/attachments/:id",
		"/rooms":                                     "/rooms",
		"/rooms/default":                             "/rooms/:category",
		"/rooms/default/lobby":                       "/rooms/:category/:room",
		"/rooms/default/lobby/live":                  "/rooms/:category/:room/live",
		"/rooms/default/lobby/messages":              "/rooms/:category/:room/messages",
		"/rooms/default/lobby/messages/01HX/replies": "/rooms/:category/:room/messages/:id/replies",
		"/rooms/default/lobby/messages/01HX/forward": "/rooms/:category/:room/messages/:id/forward",
	}
	for path, want := range tests {
		if got := normalizePath(path); got != want {
			t.Errorf("%s: expected %s, got %s", path, want, got)
		}
	}
}

func TestValidateRequest(t *testing.T) {
	handler := ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name, method, path, ct string
		body                   string
		status                 int
	}{
		{"json post", "POST", "/rooms", "application/json", "{}", http.StatusOK},
		{"form post", "POST", "/rooms", "application/x-www-form-urlencoded", "a=b", http.StatusUnsupportedMediaType},
		{"image upload", "POST", "/attachments", "image/png", "x", http.StatusOK},
		{"image elsewhere", "POST", "/rooms", "image/png", "x", http.StatusUnsupportedMediaType},
		{"traversal", "GET", "/attachments/../etc", "", "", http.StatusBadRequest},
		{"empty post", "POST", "/auth/logout", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			if tt.ct != "" {
				req.Header.Set("Content-Type", tt.ct)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestLoggerRecordsRoomAndAccount(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(Logger(zerolog.New(&buf)))
	r.Post("/rooms/{category}/{room}/messages", func(w http.ResponseWriter, r *http.Request) {
		annotateAccount(r.Context(), "acct-1")
		w.WriteHeader(http.StatusCreated)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/rooms/default/lobby/messages", nil))
	line := buf.String()
	for _, want := range []string{`"room":"default/lobby"`, `"account":"acct-1"`, `"status":201`} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %s in %s", want, line)
		}
	}

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	line = buf.String()
	if strings.Contains(line, `"room"`) || strings.Contains(line, `"account"`) {
		t.Errorf("unexpected room or account in %s", line)
	}
}
