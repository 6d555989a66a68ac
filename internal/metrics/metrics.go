package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatboard_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatboard_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	AccountsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatboard_accounts_registered_total",
			Help: "Total accounts registered",
		},
	)

	EmailsVerified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatboard_emails_verified_total",
			Help: "Total email addresses verified",
		},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatboard_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"kind"}, // "text", "image" or "forward"
	)

	RepliesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatboard_replies_posted_total",
			Help: "Total thread replies posted",
		},
	)

	AttachmentsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatboard_attachments_stored_total",
			Help: "Total image attachments uploaded",
		},
	)

	SearchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatboard_search_queries_total",
			Help: "Total search queries",
		},
	)

	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatboard_live_connections",
			Help: "Open websocket live feed connections",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatboard_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatboard_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
