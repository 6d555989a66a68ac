package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatboard/internal/api/middleware"
	"github.com/eldtechnologies/chatboard/internal/blob"
	"github.com/eldtechnologies/chatboard/internal/config"
	"github.com/eldtechnologies/chatboard/internal/handlers"
	"github.com/eldtechnologies/chatboard/internal/mail"
	"github.com/eldtechnologies/chatboard/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, dataStore store.DataStore, redisStore *store.RedisStore, blobs blob.Store, mailer mail.Mailer) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes()))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})
	r.Use(limiter.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handler and auth middleware
	h := handlers.NewHandler(logger, cfg, dataStore, redisStore, blobs, mailer)
	auth := middleware.NewAuthMiddleware(dataStore, redisStore)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/auth/verify", h.Verify)
	r.Post("/auth/verify", h.Verify)
	r.Get("/users/{id}", h.Profile)
	r.Get("/rooms", h.ListRooms)
	r.Get("/rooms/{category}/{room}", h.GetRoomMessages)
	r.Get("/rooms/{category}/{room}/messages", h.GetRoomMessages)
	r.Get("/rooms/{category}/{room}/messages/{id}", h.GetMessage)
	r.Get("/rooms/{category}/{room}/messages/{id}/replies", h.GetThread)
	r.Get("/rooms/{category}/{room}/live", h.Live)
	r.Get("/attachments/{id}", h.GetAttachment)
	r.Get("/find", h.Search)

	// Signed-in routes; unverified accounts may manage themselves
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/auth/me", h.Me)
		r.Post("/auth/logout", h.Logout)
		r.Post("/auth/verify/resend", h.ResendVerification)
		r.Put("/auth/profile", h.UpdateProfile)

		// Writes require a verified email
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireVerified)

			r.Post("/rooms", h.CreateRoom)
			r.Post("/rooms/{category}/{room}/messages", h.PostMessage)
			r.Post("/rooms/{category}/{room}/messages/{id}/forward", h.ForwardMessage)
			r.Post("/rooms/{category}/{room}/messages/{id}/replies", h.PostReply)
			r.Post("/attachments", h.UploadAttachment)
		})
	})

	return r
}
