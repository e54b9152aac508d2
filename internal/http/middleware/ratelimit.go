package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/princekumarofficial/video-service/internal/config"
	"github.com/princekumarofficial/video-service/internal/ratelimit"
	"github.com/princekumarofficial/video-service/internal/utils/response"
)

type RateLimitConfig struct {
	limiters map[string]*ratelimit.TokenBucket
}

// NewRateLimitConfig builds the per-action limiters. A nil client disables
// rate limiting entirely.
func NewRateLimitConfig(redisClient *redis.Client, cfg config.RateLimit) *RateLimitConfig {
	rlc := &RateLimitConfig{limiters: make(map[string]*ratelimit.TokenBucket)}
	if redisClient == nil {
		return rlc
	}

	if cfg.UploadsPerMinute > 0 {
		rlc.limiters[ratelimit.Upload] = ratelimit.NewTokenBucket(redisClient, cfg.UploadsPerMinute, cfg.UploadsPerMinute)
	}

	return rlc
}

func setRateLimitHeaders(w http.ResponseWriter, limiter *ratelimit.TokenBucket, remaining int64) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limiter.Capacity(), 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(limiter.Window().Seconds())))
}

// RateLimitMiddleware must run after AuthMiddleware. When Redis is
// unreachable the request is let through and the failure logged.
func (rlc *RateLimitConfig) RateLimitMiddleware(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserIDFromContext(r.Context())
			if !ok {
				response.WriteError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
				return
			}

			limiter, exists := rlc.limiters[action]
			if !exists {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, err := limiter.Allow(r.Context(), userID, action)
			if err != nil {
				slog.Error("Rate limit check failed, allowing request",
					slog.String("action", action),
					slog.String("user_id", userID),
					slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, limiter, remaining)
			if !allowed {
				response.WriteError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitedHandler wraps a handler with rate limiting for a specific action
func (rlc *RateLimitConfig) RateLimitedHandler(action string, handler http.HandlerFunc) http.Handler {
	return rlc.RateLimitMiddleware(action)(http.HandlerFunc(handler))
}
