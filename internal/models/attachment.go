package models

import "time"

// Attachment describes an uploaded image held in the blob store.
type Attachment struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}
