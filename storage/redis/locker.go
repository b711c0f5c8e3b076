package redisstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only if it is still held by the caller's token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker is a per-principal mutex shared across processes.
// TTL bounds how long a crashed holder can block others. A live holder
// renews the lease every Renew (TTL/3 by default) until it unlocks.
type Locker struct {
	rdb   redis.UniversalClient
	TTL   time.Duration
	Renew time.Duration
	Retry time.Duration
	// Logger receives renewal and release failures. Defaults to slog.Default.
	Logger *slog.Logger
}

func NewLocker(rdb redis.UniversalClient) *Locker {
	return &Locker{rdb: rdb, TTL: 30 * time.Second, Retry: 50 * time.Millisecond}
}

func lockKey(principalID string) string { return "emailchange:lock:" + principalID }

func (l *Locker) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *Locker) Lock(ctx context.Context, principalID string) (func(), error) {
	key := lockKey(principalID)
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, unreachable(err)
		}
		if ok {
			break
		}
		t := time.NewTimer(l.Retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.logger().Warn("release principal lock; it expires after TTL", "key", key, "error", err)
			}
		})
	}, nil
}

// keepAlive extends the lease until stop is closed or the lock is lost.
func (l *Locker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.Renew
	if interval <= 0 {
		interval = l.TTL / 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := renewScript.Run(ctx, l.rdb, []string{key}, token, l.TTL.Milliseconds()).Int64()
		cancel()
		if err != nil {
			l.logger().Warn("renew principal lock", "key", key, "error", err)
			continue
		}
		if n == 0 {
			l.logger().Error("principal lock lost before unlock", "key", key)
			return
		}
	}
}
