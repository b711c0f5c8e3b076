package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/open-rails/emailchange/core"
)

// KV is a Redis-backed ephemeral key-value store with TTL support.
// Pending email changes survive restarts and are shared across replicas.
type KV struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewKV(rdb redis.UniversalClient) *KV {
	return &KV{rdb: rdb}
}

// WithPrefix namespaces every key, e.g. per application.
func (k *KV) WithPrefix(prefix string) *KV { k.prefix = prefix; return k }

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := k.rdb.Get(ctx, k.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unreachable(err)
	}
	return b, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return unreachable(k.rdb.Set(ctx, k.prefix+key, value, ttl).Err())
}

func (k *KV) Del(ctx context.Context, key string) error {
	return unreachable(k.rdb.Del(ctx, k.prefix+key).Err())
}

func unreachable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: redis: %w", core.ErrUnreachable, err)
}
