package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/metrics"
	"github.com/marketfleet/courier/internal/redis"
)

// RateLimitMiddleware throttles callers by the key that keyFunc derives
// from the request. A nil limiter, an empty key, or a Redis error all
// let the request through: losing rate limiting is better than losing
// notifications.
func RateLimitMiddleware(limiter *redis.RateLimiter, logger *zap.Logger, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limit check failed, letting request through",
					zap.String("key", key),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				metrics.RecordRateLimitRejection(key)
				h.Set("Retry-After", strconv.Itoa(int(time.Until(result.ResetAt).Seconds())))
				writeProblem(w, http.StatusTooManyRequests, "rate_limit_exceeded",
					"Too Many Requests",
					"Rate limit exceeded. Retry after the window resets.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientKeyFunc rate-limits by calling service, taken from the
// X-Client-ID header. Requests without the header are not limited.
func ClientKeyFunc(r *http.Request) string {
	if client := r.Header.Get("X-Client-ID"); client != "" {
		return "client:" + client
	}
	return ""
}

// IPKeyFunc rate-limits by client IP, trusting proxy headers before
// falling back to the socket address.
func IPKeyFunc(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return "ip:" + ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return "ip:" + ip
	}
	return "ip:" + r.RemoteAddr
}
