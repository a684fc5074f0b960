package api

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimiter is a fixed-window counter shared across instances through
// Redis. A nil limiter (no Redis configured) lets everything through.
type RateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRateLimiter(client redis.UniversalClient) *RateLimiter {
	if client == nil {
		return nil
	}
	return &RateLimiter{client: client, prefix: "arbflow:rate_limit"}
}

func (l *RateLimiter) consume(ctx context.Context, scope, subject string, limit int, window time.Duration) (allowed bool, retryAfter int, err error) {
	if l == nil || limit <= 0 {
		return true, 0, nil
	}

	key := fmt.Sprintf("%s:%s:%s", l.prefix, scope, subject)
	raw, err := rateLimitScript.Run(ctx, l.client, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("api: unexpected limiter response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("api: unexpected limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("api: unexpected limiter ttl type: %T", values[1])
	}

	retry := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retry < 1 {
		retry = 1
	}
	return count <= int64(limit), retry, nil
}

// limit wraps a handler in a per-caller fixed window. The limiter failing
// open is deliberate: a Redis outage must not take offers down with it.
func (l *RateLimiter) limit(scope string, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil || perMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			subject := callerAccount(r)
			if subject == "" {
				subject = r.RemoteAddr
			}

			allowed, retryAfter, err := l.consume(r.Context(), scope, subject, perMinute, time.Minute)
			if err != nil {
				log.Printf("level=warn component=api msg=\"rate limiter unavailable\" scope=%s err=%v", scope, err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
