package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eldtechnologies/chatboard/internal/models"
	"github.com/eldtechnologies/chatboard/internal/store"
)

// RoomStats represents stats for a single room.
type RoomStats struct {
	Room         string `json:"room"`
	MessageCount int64  `json:"message_count"`
}

// MessagePreview represents a preview of a message.
type MessagePreview struct {
	ID        string `json:"id"`
	UserID    string `json:"uid"`
	User      string `json:"user"`
	Text      string `json:"text"`
	HasImage  bool   `json:"has_image,omitempty"`
	Timestamp int64  `json:"ts"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalAccounts  int64            `json:"total_accounts"`
	TotalRooms     int64            `json:"total_rooms"`
	TotalMessages  int64            `json:"total_messages"`
	LastActivity   string           `json:"last_activity"`
	TopRooms       []RoomStats      `json:"top_rooms"`
	RecentMessages []MessagePreview `json:"recent_messages"`
}

// Stats returns board-wide statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Get aggregate counts
	totalAccounts, err := h.data.CountAccounts(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count accounts")
		return
	}

	totalRooms, err := h.data.CountRooms(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count rooms")
		return
	}

	totalMessages, err := h.data.SumMessageCount(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to sum messages")
		return
	}

	// Get most recent activity
	lastActivityTime, err := h.data.GetMostRecentActivity(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to get last activity")
		return
	}

	lastActivity := "no activity yet"
	if lastActivityTime != nil {
		lastActivity = formatTimeAgo(*lastActivityTime)
	}

	topRooms, err := h.data.GetTopActiveRooms(ctx, 5)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to get top rooms")
		return
	}

	top := make([]RoomStats, 0, len(topRooms))
	for _, room := range topRooms {
		top = append(top, RoomStats{
			Room:         room.Key(),
			MessageCount: room.MessageCount,
		})
	}

	// Get recent messages from the lobby
	var messages []models.Message
	page, err := h.redis.GetRoomMessages(ctx, models.RoomKey(store.DefaultCategory, store.DefaultRoom), 5, "", "")
	if err == nil {
		messages = page.Messages
	}

	recentMessages := make([]MessagePreview, 0, len(messages))
	for _, msg := range messages {
		// Truncate text if too long
		text := msg.Text
		if runes := []rune(text); len(runes) > 200 {
			text = string(runes[:197]) + "..."
		}

		recentMessages = append(recentMessages, MessagePreview{
			ID:        msg.ID,
			UserID:    msg.UserID,
			User:      msg.User,
			Text:      text,
			HasImage:  msg.Image != "" || msg.AttachmentID != "",
			Timestamp: msg.Timestamp,
		})
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalAccounts:  totalAccounts,
		TotalRooms:     totalRooms,
		TotalMessages:  totalMessages,
		LastActivity:   lastActivity,
		TopRooms:       top,
		RecentMessages: recentMessages,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
