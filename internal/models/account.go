package models

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a registered chat board user.
type Account struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	DisplayName   string    `json:"display_name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AuthorName is the name shown next to the account's messages.
// Falls back to the email when no display name is set.
func (a *Account) AuthorName() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Email
}
