package redis

import (
	"context"
	"errors"
	"time"

	"tickerwatch/internal/application/port"
	"tickerwatch/internal/infrastructure/storage"

	"github.com/redis/go-redis/v9"
)

type Repo struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Repo {
	return &Repo{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *Repo) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Repo) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set ttl 只作用于可重新拉取的元数据缓存；跟踪列表永不过期
func (r *Repo) Set(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, r.key(key), value, r.ttlFor(key)).Err()
}

// ttlFor ttl <= 0 means no expiration
func (r *Repo) ttlFor(key string) time.Duration {
	if key != port.KeyCoinMetadata {
		return 0
	}
	return r.ttl
}

func (r *Repo) SetOrClear(ctx context.Context, key string, values []string) error {
	payload, ok, err := storage.EncodeList(values)
	if err != nil {
		return err
	}
	if !ok {
		return r.rdb.Del(ctx, r.key(key)).Err()
	}
	return r.Set(ctx, key, payload)
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.KVStore = (*Repo)(nil)
