package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/eldtechnologies/chatboard/internal/blob"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	// Check accounts/rooms database
	if h.data != nil {
		dbStart := time.Now()
		if err := h.data.Ping(ctx); err != nil {
			checks["database"] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			checks["database"] = Check{Status: "pass", Latency: time.Since(dbStart).String()}
		}
	} else {
		checks["database"] = Check{Status: "fail", Message: "not configured"}
		allHealthy = false
	}

	// Check Redis
	if h.redis != nil {
		redisStart := time.Now()
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			checks["redis"] = Check{Status: "pass", Latency: time.Since(redisStart).String()}
		}
	} else {
		checks["redis"] = Check{Status: "fail", Message: "not configured"}
		allHealthy = false
	}

	// Check attachment store; a lookup miss means it answered
	if h.blobs != nil {
		blobStart := time.Now()
		if _, err := h.blobs.Stat(ctx, "health-check"); err != nil && !errors.Is(err, blob.ErrNotFound) {
			checks["blobs"] = Check{Status: "fail", Message: "read failed"}
			allHealthy = false
		} else {
			checks["blobs"] = Check{Status: "pass", Latency: time.Since(blobStart).String()}
		}
	} else {
		checks["blobs"] = Check{Status: "fail", Message: "not configured"}
		allHealthy = false
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Instance:  os.Getenv("FLY_ALLOC_ID"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	h.JSON(w, statusCode, resp)
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "chatboard",
		Version: version,
		Endpoints: []string{
			"POST /auth/register",
			"POST /auth/login",
			"GET /auth/verify?token=",
			"POST /auth/verify/resend",
			"POST /auth/logout",
			"GET /auth/me",
			"PUT /auth/profile",
			"GET /users/{id}",
			"GET /rooms",
			"POST /rooms",
			"GET /rooms/{category}/{room}?limit=&before=&after=",
			"POST /rooms/{category}/{room}/messages",
			"GET /rooms/{category}/{room}/messages/{id}",
			"POST /rooms/{category}/{room}/messages/{id}/forward",
			"GET /rooms/{category}/{room}/messages/{id}/replies",
			"POST /rooms/{category}/{room}/messages/{id}/replies",
			"GET /rooms/{category}/{room}/live",
			"POST /attachments",
			"GET /attachments/{id}",
			"GET /find?q=",
			"GET /stats",
			"GET /health",
		},
	})
}
