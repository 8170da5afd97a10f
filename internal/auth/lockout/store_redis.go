package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"caminomanager/pkg/platform/sentinel"
)

const (
	keyPrefix   = "camino:lockout:"
	fieldCount  = "count"
	fieldFirst  = "first"
	fieldLocked = "locked_until"
)

// RedisStore keeps one hash per key. The hash expires with the window, or
// with the lock once one is set.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	fields, err := r.client.HGetAll(ctx, keyPrefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("get lockout: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeRecord(fields)
}

func (r *RedisStore) RecordFailure(ctx context.Context, key string, window time.Duration, now time.Time) (*Record, error) {
	k := keyPrefix + key
	var count *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.HIncrBy(ctx, k, fieldCount, 1)
		pipe.HSetNX(ctx, k, fieldFirst, now.UnixMilli())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	if count.Val() == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return nil, fmt.Errorf("expire lockout: %w", errors.Join(sentinel.ErrUnavailable, err))
		}
	}
	return r.Get(ctx, key)
}

func (r *RedisStore) Lock(ctx context.Context, key string, until time.Time) error {
	k := keyPrefix + key
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, fieldLocked, until.UnixMilli())
		pipe.ExpireAt(ctx, k, until)
		return nil
	})
	if err != nil {
		return fmt.Errorf("lock: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear lockout: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func decodeRecord(fields map[string]string) (*Record, error) {
	var rec Record
	if v, ok := fields[fieldCount]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("decode lockout count: %w", err)
		}
		rec.FailureCount = n
	}
	if v, ok := fields[fieldFirst]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode lockout window: %w", err)
		}
		rec.FirstFailureAt = time.UnixMilli(ms)
	}
	if v, ok := fields[fieldLocked]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode lockout: %w", err)
		}
		until := time.UnixMilli(ms)
		rec.LockedUntil = &until
	}
	return &rec, nil
}
