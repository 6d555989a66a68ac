package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/chatboard/internal/api/middleware"
	"github.com/eldtechnologies/chatboard/internal/blob"
	"github.com/eldtechnologies/chatboard/internal/metrics"
	"github.com/eldtechnologies/chatboard/internal/models"
	"github.com/eldtechnologies/chatboard/internal/store"
)

// Page sizes for room timelines.
const (
	DefaultPageSize = 40
	MaxPageSize     = 200
)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

// RoomInfo represents basic room information.
type RoomInfo struct {
	Room         string `json:"room"` // category/name
	Category     string `json:"category"`
	Name         string `json:"name"`
	MessageCount int64  `json:"message_count"`
	LastActive   string `json:"last_active"`
}

// RoomListResponse represents the rooms list response.
type RoomListResponse struct {
	Rooms []RoomInfo `json:"rooms"`
	Total int        `json:"total"`
}

// RoomMessagesResponse is one page of a room timeline, oldest first.
type RoomMessagesResponse struct {
	Room     RoomInfo         `json:"room"`
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
	Oldest   string           `json:"oldest,omitempty"` // pass as before= for the previous page
	Newest   string           `json:"newest,omitempty"` // pass as after= for the next page
}

// PostMessageRequest represents the post message request. At least one of
// text, image or attachment_id must be set.
type PostMessageRequest struct {
	Text         string `json:"text"`
	Image        string `json:"image,omitempty"` // data:image/...;base64,...
	AttachmentID string `json:"attachment_id,omitempty"`
}

func roomInfo(room *models.Room) RoomInfo {
	return RoomInfo{
		Room:         room.Key(),
		Category:     room.Category,
		Name:         room.Name,
		MessageCount: room.MessageCount,
		LastActive:   room.LastActiveAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// roomParams reads and validates the {category}/{room} URL parameters.
func (h *Handler) roomParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	category := chi.URLParam(r, "category")
	name := chi.URLParam(r, "room")
	if !isValidRoom(category, name) {
		h.Error(w, http.StatusBadRequest, "category and room must be 1-50 characters, alphanumeric with hyphens and underscores only")
		return "", "", false
	}
	return category, name, true
}

// ListRooms handles listing rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 200)
	offset := queryInt(r, "offset", 0, 1<<30)

	rooms, total, err := h.data.ListRooms(r.Context(), limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	infos := make([]RoomInfo, len(rooms))
	for i := range rooms {
		infos[i] = roomInfo(&rooms[i])
	}

	h.JSON(w, http.StatusOK, RoomListResponse{
		Rooms: infos,
		Total: total,
	})
}

// CreateRoom handles room creation (verified accounts only).
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccountFromContext(r.Context())
	if account == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Category = strings.TrimSpace(req.Category)
	req.Name = strings.TrimSpace(req.Name)
	if req.Category == "" {
		req.Category = store.DefaultCategory
	}
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if !isValidRoom(req.Category, req.Name) {
		h.Error(w, http.StatusBadRequest, "category and name must be 1-50 characters, alphanumeric with hyphens and underscores only")
		return
	}

	room, err := h.data.CreateRoom(r.Context(), req.Category, req.Name, &account.ID)
	if err != nil {
		if errors.Is(err, store.ErrRoomExists) {
			h.Error(w, http.StatusConflict, "room already exists")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	h.JSON(w, http.StatusCreated, roomInfo(room))
}

// GetRoomMessages returns a page of a room's timeline. With no cursor it
// returns the latest page; before=<id> pages backwards and after=<id>
// forwards. Messages are always returned oldest first.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	category, name, ok := h.roomParams(w, r)
	if !ok {
		return
	}

	room, err := h.data.GetRoom(r.Context(), category, name)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}

	before := r.URL.Query().Get("before")
	after := r.URL.Query().Get("after")
	if before != "" && after != "" {
		h.Error(w, http.StatusBadRequest, "before and after are mutually exclusive")
		return
	}
	limit := queryInt(r, "limit", DefaultPageSize, MaxPageSize)

	page, err := h.redis.GetRoomMessages(r.Context(), room.Key(), limit, before, after)
	if err != nil {
		if errors.Is(err, store.ErrCursorNotFound) {
			h.Error(w, http.StatusBadRequest, "unknown cursor")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	resp := RoomMessagesResponse{
		Room:     roomInfo(room),
		Messages: page.Messages,
		HasMore:  page.HasMore,
	}
	if n := len(page.Messages); n > 0 {
		resp.Oldest = page.Messages[0].ID
		resp.Newest = page.Messages[n-1].ID
	}

	h.JSON(w, http.StatusOK, resp)
}

// GetMessage returns a single message with its reply count.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	category, name, ok := h.roomParams(w, r)
	if !ok {
		return
	}

	msg, err := h.redis.GetMessage(r.Context(), models.RoomKey(category, name), chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch message")
		return
	}
	if msg == nil {
		h.Error(w, http.StatusNotFound, "message not found")
		return
	}

	h.JSON(w, http.StatusOK, msg)
}

// PostMessage appends a message to a room, creating the room on first use.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccountFromContext(r.Context())
	if account == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	category, name, ok := h.roomParams(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	text := sanitizeText(req.Text)
	if len(text) > maxTextBytes {
		h.Error(w, http.StatusUnprocessableEntity, "text too long (max 4096 bytes)")
		return
	}

	var image string
	if req.Image != "" {
		img, status, err := h.parseInlineImage(req.Image)
		if err != nil {
			h.Error(w, status, err.Error())
			return
		}
		image = img
	}

	attachmentID := strings.TrimSpace(req.AttachmentID)
	if attachmentID != "" {
		if _, err := h.blobs.Stat(r.Context(), attachmentID); err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				h.Error(w, http.StatusUnprocessableEntity, "attachment not found")
				return
			}
			h.Error(w, http.StatusInternalServerError, "failed to look up attachment")
			return
		}
	}

	if text == "" && image == "" && attachmentID == "" {
		h.Error(w, http.StatusBadRequest, "message needs text, an image or an attachment")
		return
	}

	room, err := h.data.EnsureRoom(r.Context(), category, name, &account.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	msg := &models.Message{
		Room:         room.Key(),
		UserID:       account.ID.String(),
		User:         account.AuthorName(),
		Text:         text,
		Image:        image,
		AttachmentID: attachmentID,
	}

	// Store in Redis (generates ID and timestamp)
	if err := h.redis.AddMessage(r.Context(), msg); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	h.touchRoom(r, category, name)

	kind := "text"
	if image != "" || attachmentID != "" {
		kind = "image"
	}
	metrics.MessagesPosted.WithLabelValues(kind).Inc()

	h.JSON(w, http.StatusCreated, msg)
}

// touchRoom bumps a room's message count and activity time.
func (h *Handler) touchRoom(r *http.Request, category, name string) {
	if err := h.data.IncrementMessageCount(r.Context(), category, name); err != nil {
		// Log but don't fail the request
		h.logger.Warn().Err(err).Str("room", models.RoomKey(category, name)).Msg("failed to update room activity")
	}
}
