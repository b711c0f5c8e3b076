package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit configures a named fixed-window bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// incrScript increments the window counter and sets its expiry on first use.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RateLimiter is a fixed-window limiter shared across replicas.
type RateLimiter struct {
	rdb    redis.UniversalClient
	limits map[string]Limit
}

func NewRateLimiter(rdb redis.UniversalClient, limits map[string]Limit) *RateLimiter {
	return &RateLimiter{rdb: rdb, limits: limits}
}

// AllowNamed counts one hit against key under bucket's limit. Buckets without
// a limit fall back to "default"; with neither, every call is allowed.
func (r *RateLimiter) AllowNamed(bucket, key string) (bool, error) {
	l, ok := r.limits[bucket]
	if !ok {
		l = r.limits["default"]
	}
	if l.Limit <= 0 || l.Window <= 0 {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := incrScript.Run(ctx, r.rdb, []string{"rl:" + key}, l.Window.Milliseconds()).Int64()
	if err != nil {
		return false, unreachable(err)
	}
	return n <= int64(l.Limit), nil
}
