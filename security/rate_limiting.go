package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, prefix string) *RateLimiter {
	return &RateLimiter{redis: redisClient, prefix: prefix, limit: 30, window: time.Minute}
}

// AntiBot is router middleware that turns away crawler user agents and caps
// write requests per client IP.
func (r *RateLimiter) AntiBot(e *core.RequestEvent) error {
	if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
		return apis.NewForbiddenError("Access denied", nil)
	}

	if e.Request.Method == http.MethodGet || r.redis == nil {
		return e.Next()
	}

	ctx := e.Request.Context()
	key := fmt.Sprintf("%s:antibot:%s", r.prefix, e.RealIP())

	count, err := r.redis.Incr(ctx, key).Result()
	if err == nil {
		if count == 1 {
			r.redis.Expire(ctx, key, r.window)
		}
		if count > r.limit {
			return apis.NewTooManyRequestsError("Too many requests", nil)
		}
	}

	return e.Next()
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
