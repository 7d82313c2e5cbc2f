// Package redis implements store.KV backed by a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// KV implements store.KV on go-redis. Safe for concurrent use; the
// underlying client pools connections.
type KV struct {
	client *redis.Client
}

// New creates a Redis-backed KV from a redis:// URL.
func New(url string) (*KV, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &KV{client: redis.NewClient(opt)}, nil
}

// NewFromClient wraps an existing client (tests, shared pools).
func NewFromClient(client *redis.Client) *KV {
	return &KV{client: client}
}

func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := k.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err)
	}
	return val, true, nil
}

func (k *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := k.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

func (k *KV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	won, err := k.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrap(err)
	}
	return won, nil
}

func (k *KV) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := k.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, wrap(err)
	}
	return incr.Val(), nil
}

func (k *KV) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := k.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, wrap(err)
	}
	return ok, nil
}

func (k *KV) Ping(ctx context.Context) error {
	if err := k.client.Ping(ctx).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// Close releases the client's connection pool.
func (k *KV) Close() error {
	return k.client.Close()
}

// wrap maps transport-level failures to store.ErrUnavailable so callers can
// trigger their degraded modes without knowing about go-redis error types.
func wrap(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
