package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"civreg/pkg/platform/httputil"
	"civreg/pkg/requestcontext"
)

// RateLimitConfig bounds write submissions per user over a fixed window.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// DefaultRateLimit bounds one registrar to a sustained clerical pace.
var DefaultRateLimit = RateLimitConfig{Limit: 120, Window: time.Minute}

// RateLimit enforces a per-user fixed-window limit backed by Redis. Limiter
// errors fail open: an unreachable Redis must not take the write path down
// with it. The middleware expects RequireAuth to have run first.
func RateLimit(client *redis.Client, cfg RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userID := requestcontext.UserID(ctx)
			if userID.IsNil() {
				next.ServeHTTP(w, r)
				return
			}

			window := requestcontext.Now(ctx).Unix() / int64(cfg.Window.Seconds())
			key := fmt.Sprintf("civreg:ratelimit:%s:%d", userID, window)

			pipe := client.TxPipeline()
			count := pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, cfg.Window)
			if _, err := pipe.Exec(ctx); err != nil {
				logger.WarnContext(ctx, "rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := cfg.Limit - int(count.Val())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if count.Val() > int64(cfg.Limit) {
				w.Header().Set("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":             "rate_limited",
					"error_description": "too many requests, slow down",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
