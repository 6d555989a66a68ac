package handlers

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/eldtechnologies/chatboard/internal/metrics"
)

var searchWordRegex = regexp.MustCompile(`[a-z0-9]+`)

// stopWords are common words to exclude from search
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"it": true, "that": true, "this": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "into": true, "like": true,
}

// SearchResult represents a single search result.
type SearchResult struct {
	MessageID string `json:"id"`
	Room      string `json:"room"`
	UserID    string `json:"uid"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
}

// SearchResponse represents the search response.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

// tokenize extracts searchable words from text.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	words := searchWordRegex.FindAllString(lower, -1)

	// Deduplicate and filter
	seen := make(map[string]bool)
	result := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) >= 2 && !seen[w] && !stopWords[w] {
			seen[w] = true
			result = append(result, w)
		}
	}

	// Limit to 5 tokens
	if len(result) > 5 {
		result = result[:5]
	}

	return result
}

// Search handles the search endpoint.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	// Parse query
	query := r.URL.Query().Get("q")
	if query == "" {
		h.Error(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	if len(query) > 100 {
		h.Error(w, http.StatusBadRequest, "query too long (max 100 chars)")
		return
	}

	limit := queryInt(r, "limit", 20, 100)

	// Parse after timestamp (Unix ms)
	var after int64 = 0
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		if a, err := strconv.ParseInt(afterStr, 10, 64); err == nil {
			after = a
		}
	}

	// Parse room filter (category/name)
	roomFilter := r.URL.Query().Get("room")
	if roomFilter != "" {
		category, name, ok := strings.Cut(roomFilter, "/")
		if !ok || !isValidRoom(category, name) {
			h.Error(w, http.StatusBadRequest, "room must be category/name")
			return
		}
	}
	metrics.SearchQueries.Inc()

	// Tokenize query
	tokens := tokenize(query)
	if len(tokens) == 0 {
		h.JSON(w, http.StatusOK, SearchResponse{
			Query:   query,
			Results: []SearchResult{},
			Total:   0,
		})
		return
	}

	// Search Redis
	messages, err := h.redis.SearchMessages(r.Context(), tokens, limit, after, roomFilter)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "search failed")
		return
	}

	results := make([]SearchResult, 0, len(messages))
	for _, msg := range messages {
		results = append(results, SearchResult{
			MessageID: msg.ID,
			Room:      msg.Room,
			UserID:    msg.UserID,
			User:      msg.User,
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
		})
	}

	h.JSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Results: results,
		Total:   len(results),
	})
}
