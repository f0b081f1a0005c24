package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/porteria/visitor-access/internal/http/response"
	"github.com/porteria/visitor-access/pkg/logger"
)

// RateLimitConfig defines rate limiting parameters for a route group.
type RateLimitConfig struct {
	Requests int           // max requests per window
	Window   time.Duration // window duration
	Prefix   string        // key namespace, one per protected surface
}

// RateLimiter is a fixed-window counter in Redis. On Redis failure it
// fails open: the public surface degrades to unlimited rather than down.
type RateLimiter struct {
	client *redis.Client
	config RateLimitConfig
}

func NewRateLimiter(client *redis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, config: config}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(r.Context(), clientIP(r)) {
				response.RateLimit(w, "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(ctx context.Context, ip string) bool {
	if ip == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	// Hash the IP so raw addresses never land in Redis.
	key := fmt.Sprintf("ratelimit:%s:%x", rl.config.Prefix, sha256.Sum256([]byte(ip)))

	pipe := rl.client.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("Rate limit check failed, allowing request", "error", err)
		return true
	}
	return count.Val() <= int64(rl.config.Requests)
}

// clientIP prefers proxy headers over the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
