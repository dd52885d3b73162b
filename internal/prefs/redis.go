package prefs

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps state in Redis so it is shared between instances.
type RedisStore struct {
	rc *redis.Client
}

// OpenRedis connects to addr. An empty addr returns nil.
func OpenRedis(addr, password string, db int) *RedisStore {
	if addr == "" {
		return nil
	}
	return &RedisStore{rc: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})}
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rc *redis.Client) *RedisStore {
	return &RedisStore{rc: rc}
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rc.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisStore) Close() error {
	return r.rc.Close()
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rc.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.rc.Set(ctx, key, value, 0).Err()
}

func (r *RedisStore) PushFront(ctx context.Context, key, value string, max int) ([]string, error) {
	var list *redis.StringSliceCmd
	_, err := r.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, key, 0, value)
		p.LPush(ctx, key, value)
		if max > 0 {
			p.LTrim(ctx, key, 0, int64(max-1))
		}
		list = p.LRange(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list.Val(), nil
}

func (r *RedisStore) Append(ctx context.Context, key, value string, max int) error {
	_, err := r.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, value)
		if max > 0 {
			p.LTrim(ctx, key, int64(-max), -1)
		}
		return nil
	})
	return err
}

func (r *RedisStore) List(ctx context.Context, key string) ([]string, error) {
	return r.rc.LRange(ctx, key, 0, -1).Result()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.rc.Del(ctx, key).Err()
}
