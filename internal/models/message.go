package models

// Message represents a chat message stored in Redis.
type Message struct {
	ID           string `json:"id"`   // ULID
	Room         string `json:"room"` // category/name
	UserID       string `json:"uid"`
	User         string `json:"user"` // display name at post time
	Text         string `json:"text"`
	Image        string `json:"image,omitempty"` // inline data URL
	AttachmentID string `json:"attachment_id,omitempty"`
	Timestamp    int64  `json:"ts"` // Unix ms

	// Forward provenance, set together or not at all.
	ForwardedFromRoom string `json:"forwarded_from_room,omitempty"`
	ForwardedCategory string `json:"forwarded_category,omitempty"`
	ForwardedAt       int64  `json:"forwarded_at,omitempty"`

	ReplyCount int64 `json:"reply_count"`
}

// IsForwarded reports whether the message was copied from another room.
func (m *Message) IsForwarded() bool {
	return m.ForwardedFromRoom != ""
}

// Reply is a message nested under a parent message.
type Reply struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id"`
	Room      string `json:"room"`
	UserID    string `json:"uid"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
}
