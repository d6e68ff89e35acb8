package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/guildhall-io/guildhall/pkg/httputil"
	"github.com/guildhall-io/guildhall/pkg/identity"
	"github.com/guildhall-io/guildhall/pkg/observability"
)

// RateLimitConfig is a fixed-window limit.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultRateLimitConfig allows 120 requests per minute, enough for an
// interactive client and low enough to blunt scripted abuse of the
// review endpoints.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 120,
		WindowDuration:    time.Minute,
	}
}

// RateLimiter is a Redis-backed fixed-window limiter so the limit holds
// across every instance. On Redis failure it fails open: governance
// must stay reachable even when the limiter's backing store is not.
type RateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
	logger *observability.Logger
}

// NewRateLimiter creates a limiter using the given Redis client.
func NewRateLimiter(client *redis.Client, config RateLimitConfig, logger *observability.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		config: config,
		prefix: "guildhall:ratelimit",
		logger: logger,
	}
}

// Allow counts one request against key and reports whether it is under
// the window limit. The increment and expiry run in one pipeline so a
// crashed instance never leaves a counter without a TTL.
func (rl *RateLimiter) Allow(r *http.Request, key string) (allowed bool, remaining int, err error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(r.Context(), redisKey)
	pipe.Expire(r.Context(), redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(r.Context()); err != nil {
		return true, 0, fmt.Errorf("rate limit check: %w", err)
	}

	count := int(incr.Val())
	remaining = rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.config.RequestsPerWindow, remaining, nil
}

// Middleware enforces the limit per authenticated caller, falling back
// to the client address for unauthenticated requests.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "addr:" + clientAddr(r)
		if caller, ok := identity.CallerFromContext(r.Context()); ok {
			key = fmt.Sprintf("member:%d", caller.ID)
		}

		allowed, remaining, err := rl.Allow(r, key)
		if err != nil {
			rl.logger.WithError(err).Warn("rate limiter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.config.WindowDuration.Seconds())))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}
