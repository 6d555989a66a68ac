package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/eldtechnologies/chatboard/internal/models"
	"github.com/eldtechnologies/chatboard/internal/store"
)

type contextKey string

const (
	AccountContextKey contextKey = "account"
	TokenContextKey   contextKey = "session_token"
)

// AuthMiddleware resolves bearer session tokens to accounts.
type AuthMiddleware struct {
	data  store.DataStore
	redis *store.RedisStore
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(data store.DataStore, redis *store.RedisStore) *AuthMiddleware {
	return &AuthMiddleware{data: data, redis: redis}
}

// RequireAuth rejects requests without a live session.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		accountID, err := m.redis.GetSession(r.Context(), token)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		if accountID == "" {
			jsonError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		id, err := uuid.Parse(accountID)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		account, err := m.data.GetAccountByID(r.Context(), id)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "database error")
			return
		}
		if account == nil {
			jsonError(w, http.StatusUnauthorized, "account not found")
			return
		}

		annotateAccount(r.Context(), account.ID.String())
		ctx := context.WithValue(r.Context(), AccountContextKey, account)
		ctx = context.WithValue(ctx, TokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireVerified must run after RequireAuth. It blocks accounts whose
// email address has not been confirmed.
func RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := GetAccountFromContext(r.Context())
		if account == nil {
			jsonError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !account.EmailVerified {
			jsonError(w, http.StatusForbidden, "email not verified")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetAccountFromContext retrieves the authenticated account from the request context.
func GetAccountFromContext(ctx context.Context) *models.Account {
	account, ok := ctx.Value(AccountContextKey).(*models.Account)
	if !ok {
		return nil
	}
	return account
}

// GetTokenFromContext returns the session token of the current request.
func GetTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey).(string)
	return token
}
