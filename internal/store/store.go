// Package store holds the shared-state layer of the pipeline: the KV
// capability interface over the external key-value store, and the three
// components built on it (thread store, idempotency guard, rate limiter).
//
// All shared mutations go through single atomic KV operations (SetNX,
// IncrWindow) so correctness holds across worker processes with no shared
// memory. In-process locks here only protect process-local fallback state.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the key-value store could not be reached.
// Components degrade per their own policy when they see it.
var ErrUnavailable = errors.New("store unavailable")

// KV is the capability interface over the external key-value store.
// Every method is atomic on the store side.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes the value with a TTL, overwriting any existing value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes the value with a TTL only if the key is absent.
	// Returns true if this call won the write.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// IncrWindow increments a counter, setting the TTL when the key is
	// created, and returns the post-increment count.
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Expire resets the TTL of an existing key. Returns false if the key
	// does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Ping reports store reachability (health checks only).
	Ping(ctx context.Context) error
}

// Key layout within the shared store.
const (
	threadKeyPrefix = "thread:" // thread:{user_id} → AI-side thread id
	seenKeyPrefix   = "seen:"   // seen:{message_id} → first-seen timestamp
	rateKeyPrefix   = "rate:"   // rate:{scope}:{window} → request count
)
