package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/chatboard/internal/api/middleware"
	"github.com/eldtechnologies/chatboard/internal/metrics"
	"github.com/eldtechnologies/chatboard/internal/models"
	"github.com/eldtechnologies/chatboard/internal/store"
)

// ReplyRequest represents the post reply request. Replies are text only.
type ReplyRequest struct {
	Text string `json:"text"`
}

// ThreadResponse is a parent message with a page of its replies.
type ThreadResponse struct {
	Parent  *models.Message `json:"parent"`
	Replies []models.Reply  `json:"replies"`
	HasMore bool            `json:"has_more"`
}

// GetThread returns a message and its replies, oldest first. after=<reply id>
// continues from a previous page.
func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	category, name, ok := h.roomParams(w, r)
	if !ok {
		return
	}
	room := models.RoomKey(category, name)

	parent, err := h.redis.GetMessage(r.Context(), room, chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch message")
		return
	}
	if parent == nil {
		h.Error(w, http.StatusNotFound, "message not found")
		return
	}

	limit := queryInt(r, "limit", DefaultPageSize, MaxPageSize)
	replies, hasMore, err := h.redis.GetReplies(r.Context(), room, parent.ID, limit, r.URL.Query().Get("after"))
	if err != nil {
		if errors.Is(err, store.ErrCursorNotFound) {
			h.Error(w, http.StatusBadRequest, "unknown cursor")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to fetch replies")
		return
	}

	h.JSON(w, http.StatusOK, ThreadResponse{
		Parent:  parent,
		Replies: replies,
		HasMore: hasMore,
	})
}

// PostReply adds a reply under a message.
func (h *Handler) PostReply(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccountFromContext(r.Context())
	if account == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	category, name, ok := h.roomParams(w, r)
	if !ok {
		return
	}
	room := models.RoomKey(category, name)

	var req ReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	text := sanitizeText(req.Text)
	if len(text) > maxTextBytes {
		h.Error(w, http.StatusUnprocessableEntity, "text too long (max 4096 bytes)")
		return
	}
	if text == "" {
		h.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	parent, err := h.redis.GetMessage(r.Context(), room, chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch message")
		return
	}
	if parent == nil {
		h.Error(w, http.StatusNotFound, "message not found")
		return
	}

	reply := &models.Reply{
		ParentID: parent.ID,
		Room:     room,
		UserID:   account.ID.String(),
		User:     account.AuthorName(),
		Text:     text,
	}
	if err := h.redis.AddReply(r.Context(), reply); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store reply")
		return
	}
	metrics.RepliesPosted.Inc()

	h.JSON(w, http.StatusCreated, reply)
}
