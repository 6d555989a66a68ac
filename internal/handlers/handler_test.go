package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/eldtechnologies/chatboard/internal/config"
)

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"  Alice  ":              "Alice",
		"<b>Bob</b>":             "Bob",
		"&lt;i&gt;Eve&lt;/i&gt;": "Eve",
		"tab\tname":              "tabname",
		"Tom & Jerry":            "Tom & Jerry",
		"O'Brien":                "O'Brien",
		strings.Repeat("é", 150): strings.Repeat("é", 100),
	}
	for in, want := range tests {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeText(t *testing.T) {
	if got := sanitizeText("  line one\nline two  "); got != "line one\nline two" {
		t.Fatalf("newlines not kept: %q", got)
	}
	if got := sanitizeText(`<img src=x onerror=alert(1)>hi`); got != "hi" {
		t.Fatalf("markup not stripped: %q", got)
	}
	if got := sanitizeText("   "); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}

	plain := []string{
		"Tom & Jerry",
		"if a < b && c > d",
		`say "hi" it's`,
		"<3",
	}
	for _, in := range plain {
		if got := sanitizeText(in); got != in {
			t.Errorf("sanitizeText(%q) = %q, want it unchanged", in, got)
		}
	}
	if got := sanitizeText("&lt;script&gt;alert(1)&lt;/script&gt;ok"); got != "ok" {
		t.Fatalf("encoded markup not stripped: %q", got)
	}
	if got := sanitizeText(strings.Repeat("&", maxTextBytes)); len(got) != maxTextBytes {
		t.Fatalf("escaping changed the length: %d", len(got))
	}
}

func TestIsValidRoom(t *testing.T) {
	tests := []struct {
		category, name string
		want           bool
	}{
		{"default", "lobby", true},
		{"my-games", "chess_club", true},
		{"", "lobby", false},
		{"default", "", false},
		{"with space", "lobby", false},
		{"default", "a.b", false},
		{strings.Repeat("a", 51), "lobby", false},
	}
	for _, tt := range tests {
		if got := isValidRoom(tt.category, tt.name); got != tt.want {
			t.Errorf("isValidRoom(%q, %q) = %v, want %v", tt.category, tt.name, got, tt.want)
		}
	}
}

func TestParseInlineImage(t *testing.T) {
	h := &Handler{cfg: &config.Config{MaxImageBytes: 64, SessionTTL: time.Hour}}
	gif := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")

	// Declared type is replaced by the sniffed one
	img, _, err := h.parseInlineImage("data:image/png;base64," + base64.StdEncoding.EncodeToString(gif))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(img, "data:image/gif;base64,") {
		t.Fatalf("expected gif data URL, got %q", img[:30])
	}

	tests := []struct {
		name   string
		in     string
		status int
	}{
		{"no scheme", "image/png;base64,AAAA", http.StatusBadRequest},
		{"not base64 encoded", "data:image/png,rawbytes", http.StatusBadRequest},
		{"not an image type", "data:text/plain;base64,aGk=", http.StatusBadRequest},
		{"bad payload", "data:image/png;base64,***", http.StatusBadRequest},
		{"too large", "data:image/gif;base64," + base64.StdEncoding.EncodeToString(append(gif, make([]byte, 100)...)), http.StatusRequestEntityTooLarge},
		{"not image bytes", "data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("hello world")), http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, status, err := h.parseInlineImage(tt.in)
			if err == nil || status != tt.status {
				t.Fatalf("expected %d error, got %d %v", tt.status, status, err)
			}
		})
	}
}

func TestFormatTimeAgo(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute + time.Second, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{49 * time.Hour, "2 days ago"},
	}
	for _, tt := range tests {
		if got := formatTimeAgo(time.Now().Add(-tt.ago)); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.ago, got, tt.want)
		}
	}
}
