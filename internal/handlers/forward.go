package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/chatboard/internal/api/middleware"
	"github.com/eldtechnologies/chatboard/internal/metrics"
	"github.com/eldtechnologies/chatboard/internal/models"
)

// ForwardRequest names the room a message is copied into.
type ForwardRequest struct {
	Category string `json:"category"`
	Room     string `json:"room"`
}

// ForwardMessage copies a message into another existing room. The copy is
// authored by the forwarder and records the room it came from.
func (h *Handler) ForwardMessage(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccountFromContext(r.Context())
	if account == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	category, name, ok := h.roomParams(w, r)
	if !ok {
		return
	}

	var req ForwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Category = strings.TrimSpace(req.Category)
	req.Room = strings.TrimSpace(req.Room)
	if !isValidRoom(req.Category, req.Room) {
		h.Error(w, http.StatusBadRequest, "target category and room are required")
		return
	}

	source, err := h.redis.GetMessage(r.Context(), models.RoomKey(category, name), chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch message")
		return
	}
	if source == nil {
		h.Error(w, http.StatusNotFound, "message not found")
		return
	}

	target, err := h.data.GetRoom(r.Context(), req.Category, req.Room)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if target == nil {
		h.Error(w, http.StatusNotFound, "target room not found")
		return
	}

	msg := &models.Message{
		Room:              target.Key(),
		UserID:            account.ID.String(),
		User:              account.AuthorName(),
		Text:              source.Text,
		Image:             source.Image,
		AttachmentID:      source.AttachmentID,
		ForwardedFromRoom: name,
		ForwardedCategory: category,
		ForwardedAt:       time.Now().UnixMilli(),
	}

	if err := h.redis.AddMessage(r.Context(), msg); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	h.touchRoom(r, target.Category, target.Name)
	metrics.MessagesPosted.WithLabelValues("forward").Inc()

	h.JSON(w, http.StatusCreated, msg)
}
