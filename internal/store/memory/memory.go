// Package memory implements store.KV in process memory. Single-instance
// deployments and tests only: state is lost on restart and invisible to
// other workers.
package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	count     int64
	expiresAt time.Time // zero = no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// KV implements store.KV with a mutex-guarded map. Expired entries are
// dropped lazily on access.
type KV struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// New creates an empty in-memory KV.
func New() *KV {
	return &KV{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// get returns a live entry or nil, dropping it if expired. Callers hold mu.
func (k *KV) get(key string) *entry {
	e, ok := k.entries[key]
	if !ok {
		return nil
	}
	if e.expired(k.now()) {
		delete(k.entries, key)
		return nil
	}
	return e
}

func (k *KV) Get(_ context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e := k.get(key)
	if e == nil {
		return "", false, nil
	}
	return e.value, true, nil
}

func (k *KV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.entries[key] = &entry{value: value, expiresAt: k.deadline(ttl)}
	return nil
}

func (k *KV) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.get(key) != nil {
		return false, nil
	}
	k.entries[key] = &entry{value: value, expiresAt: k.deadline(ttl)}
	return true, nil
}

func (k *KV) IncrWindow(_ context.Context, key string, ttl time.Duration) (int64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e := k.get(key)
	if e == nil {
		e = &entry{expiresAt: k.deadline(ttl)}
		k.entries[key] = e
	}
	e.count++
	return e.count, nil
}

func (k *KV) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e := k.get(key)
	if e == nil {
		return false, nil
	}
	e.expiresAt = k.deadline(ttl)
	return true, nil
}

func (k *KV) Ping(_ context.Context) error { return nil }

func (k *KV) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return k.now().Add(ttl)
}

// SetClock overrides the time source. Tests only.
func (k *KV) SetClock(now func() time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.now = now
}
