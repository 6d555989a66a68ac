package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/chatboard/internal/api/middleware"
	"github.com/eldtechnologies/chatboard/internal/crypto"
	"github.com/eldtechnologies/chatboard/internal/metrics"
	"github.com/eldtechnologies/chatboard/internal/models"
	"github.com/eldtechnologies/chatboard/internal/store"
)

// VerificationTTL is how long an emailed verification link stays valid.
const VerificationTTL = 24 * time.Hour

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	ProfileURL    string `json:"profile_url"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries a new session token.
type LoginResponse struct {
	Token         string          `json:"token"`
	ExpiresAt     string          `json:"expires_at"`
	EmailVerified bool            `json:"email_verified"`
	Account       *models.Account `json:"account"`
}

// VerifyRequest carries an emailed verification token.
type VerifyRequest struct {
	Token string `json:"token"`
}

// ProfileRequest updates the caller's display name.
type ProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// Register handles account creation. The account starts unverified and a
// verification link is mailed to the given address.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !isValidEmail(email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooShort) || errors.Is(err, crypto.ErrPasswordTooLong) {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	account, err := h.data.CreateAccount(r.Context(), email, hash, sanitizeName(req.DisplayName))
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			h.Error(w, http.StatusConflict, "email already registered")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	metrics.AccountsRegistered.Inc()

	// The account exists either way; a failed send can be retried via resend.
	if err := h.sendVerification(r.Context(), account); err != nil {
		h.logger.Error().Err(err).Str("account", account.ID.String()).Msg("verification email failed")
	}

	h.JSON(w, http.StatusCreated, RegisterResponse{
		ID:            account.ID.String(),
		Email:         account.Email,
		EmailVerified: account.EmailVerified,
		ProfileURL:    fmt.Sprintf("/users/%s", account.ID.String()),
	})
}

// Login exchanges email and password for a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		h.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	account, err := h.data.GetAccountByEmail(r.Context(), email)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if account == nil || crypto.CheckPassword(account.PasswordHash, req.Password) != nil {
		h.Error(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := crypto.NewToken()
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	if err := h.redis.CreateSession(r.Context(), token, account.ID.String(), h.cfg.SessionTTL); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.JSON(w, http.StatusOK, LoginResponse{
		Token:         token,
		ExpiresAt:     time.Now().Add(h.cfg.SessionTTL).UTC().Format(time.RFC3339),
		EmailVerified: account.EmailVerified,
		Account:       account,
	})
}

// Verify consumes a verification token. The token is read from the query
// string (the emailed link) or from a JSON body.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		var req VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		token = req.Token
	}
	if token == "" {
		h.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	accountID, err := h.redis.ConsumeVerification(r.Context(), token)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "verification lookup failed")
		return
	}
	id, err := uuid.Parse(accountID)
	if accountID == "" || err != nil {
		h.Error(w, http.StatusBadRequest, "invalid or expired verification token")
		return
	}

	if err := h.data.MarkEmailVerified(r.Context(), id); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to verify email")
		return
	}
	metrics.EmailsVerified.Inc()

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"id":             id.String(),
		"email_verified": true,
	})
}

// ResendVerification mails a fresh verification link to the caller.
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccountFromContext(r.Context())
	if account == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if account.EmailVerified {
		h.Error(w, http.StatusConflict, "email already verified")
		return
	}

	if err := h.sendVerification(r.Context(), account); err != nil {
		h.logger.Error().Err(err).Str("account", account.ID.String()).Msg("verification email failed")
		h.Error(w, http.StatusBadGateway, "failed to send verification email")
		return
	}

	h.JSON(w, http.StatusAccepted, map[string]string{"status": "verification email sent"})
}

// Logout ends the current session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetTokenFromContext(r.Context())
	if err := h.redis.DeleteSession(r.Context(), token); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to end session")
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Me returns the authenticated account.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccountFromContext(r.Context())
	if account == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.JSON(w, http.StatusOK, account)
}

// UpdateProfile sets the caller's display name.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccountFromContext(r.Context())
	if account == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.DisplayName)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "display_name is required")
		return
	}

	if err := h.data.UpdateDisplayName(r.Context(), account.ID, name); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	updated := *account
	updated.DisplayName = name
	h.JSON(w, http.StatusOK, &updated)
}

func (h *Handler) sendVerification(ctx context.Context, account *models.Account) error {
	token, err := crypto.NewToken()
	if err != nil {
		return err
	}
	if err := h.redis.CreateVerification(ctx, token, account.ID.String(), VerificationTTL); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}
	link := h.cfg.PublicURL + "/auth/verify?token=" + url.QueryEscape(token)
	return h.mailer.SendVerification(ctx, account.Email, link)
}
