package models

import (
	"time"

	"github.com/google/uuid"
)

// Room represents a chat channel addressed by category and name.
type Room struct {
	Category     string     `json:"category"`
	Name         string     `json:"name"`
	CreatedBy    *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	MessageCount int64      `json:"message_count"`
}

// Key returns the "category/name" address of the room.
func (r *Room) Key() string {
	return RoomKey(r.Category, r.Name)
}

// RoomKey joins a category and room name into a room address.
func RoomKey(category, name string) string {
	return category + "/" + name
}
