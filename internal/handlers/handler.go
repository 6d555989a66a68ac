package handlers

import (
	"encoding/json"
	"html"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatboard/internal/blob"
	"github.com/eldtechnologies/chatboard/internal/config"
	"github.com/eldtechnologies/chatboard/internal/mail"
	"github.com/eldtechnologies/chatboard/internal/store"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Room category and name validation: alphanumeric, hyphens, underscores, 1-50 chars
var roomNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// textPolicy strips all markup from user supplied text.
var textPolicy = bluemonday.StrictPolicy()

const maxTextBytes = 4096

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	data   store.DataStore
	redis  *store.RedisStore
	blobs  blob.Store
	mailer mail.Mailer
	cfg    *config.Config
	logger zerolog.Logger
}

// NewHandler creates a new Handler with the given stores.
func NewHandler(logger zerolog.Logger, cfg *config.Config, data store.DataStore, redis *store.RedisStore, blobs blob.Store, mailer mail.Mailer) *Handler {
	return &Handler{
		data:   data,
		redis:  redis,
		blobs:  blobs,
		mailer: mailer,
		cfg:    cfg,
		logger: logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// stripMarkup removes HTML tags, including entity-encoded ones, and returns
// plain unescaped text.
func stripMarkup(s string) string {
	return html.UnescapeString(textPolicy.Sanitize(html.UnescapeString(s)))
}

// sanitizeName trims and limits name to 100 characters, removing markup and control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(stripMarkup(name))

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}

// sanitizeText strips markup from message and reply text. Newlines are kept.
func sanitizeText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = strings.Map(func(r rune) rune {
		if r != '\n' && r != '\t' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(stripMarkup(text))
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// isValidRoom checks a category and room name pair.
func isValidRoom(category, name string) bool {
	return roomNameRegex.MatchString(category) && roomNameRegex.MatchString(name)
}

// queryInt parses a positive integer query parameter, clamped to max.
func queryInt(r *http.Request, key string, def, max int) int {
	v := def
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			v = n
		}
	}
	if v > max {
		v = max
	}
	return v
}
