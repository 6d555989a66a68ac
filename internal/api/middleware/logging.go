package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const requestLogKey contextKey = "request_log"

// requestLog collects fields resolved further down the chain, after the
// logger has already passed the request on.
type requestLog struct {
	account string
}

// annotateAccount records the authenticated account for the request log line.
func annotateAccount(ctx context.Context, accountID string) {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		rl.account = accountID
	}
}

// Logger returns a request logging middleware using zerolog. Room routes
// log the room they addressed and authenticated routes log the account.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rl := &requestLog{}
			r = r.WithContext(context.WithValue(r.Context(), requestLogKey, rl))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				event := logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr)

				// chi fills the route context in place while routing
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					if category, room := rctx.URLParam("category"), rctx.URLParam("room"); category != "" && room != "" {
						event = event.Str("room", category+"/"+room)
					}
				}
				if rl.account != "" {
					event = event.Str("account", rl.account)
				}
				event.Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
