package tokenstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "moroccoview:"

type redisStorage struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis connects to redisURL (e.g. redis://:pass@host:6379/0). Keys are
// namespaced by prefix, "moroccoview:" when empty.
func NewRedis(ctx context.Context, redisURL, prefix string) (Storage, func() error, error) {
	if prefix == "" {
		prefix = defaultPrefix
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid redis url")
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, errors.Wrap(err, "redis unreachable")
	}

	return &redisStorage{rdb: rdb, prefix: prefix}, rdb.Close, nil
}

func (r *redisStorage) key(k string) string { return r.prefix + k }

func (r *redisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *redisStorage) Set(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, r.key(key), value, 0).Err()
}

func (r *redisStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.rdb.Del(ctx, full...).Err()
}
