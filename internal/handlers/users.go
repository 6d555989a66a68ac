package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ProfileResponse is the public view of an account.
type ProfileResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	JoinedAt    string `json:"joined_at"`
}

// Profile handles public account lookup.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")

	// Validate UUID format
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	account, err := h.data.GetAccountByID(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	if account == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, ProfileResponse{
		ID:          account.ID.String(),
		DisplayName: account.DisplayName,
		JoinedAt:    account.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}
