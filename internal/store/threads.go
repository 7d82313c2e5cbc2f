package store

import (
	"context"
	"fmt"
	"time"
)

// ThreadStore maps a user id to its live AI-side conversation thread with a
// sliding TTL. At most one live thread exists per user; expiry means the
// next message opens a fresh thread with no AI-side context.
type ThreadStore struct {
	kv  KV
	ttl time.Duration
}

// NewThreadStore creates a thread store with the given sliding TTL.
func NewThreadStore(kv KV, ttl time.Duration) *ThreadStore {
	return &ThreadStore{kv: kv, ttl: ttl}
}

func threadKey(userID string) string {
	return threadKeyPrefix + userID
}

// Get returns the live thread id for a user, if any.
func (s *ThreadStore) Get(ctx context.Context, userID string) (string, bool, error) {
	val, ok, err := s.kv.Get(ctx, threadKey(userID))
	if err != nil {
		return "", false, fmt.Errorf("get thread for %s: %w", userID, err)
	}
	return val, ok, nil
}

// PutNX claims the thread slot for a user. Two workers that concurrently
// created AI-side threads for the same user race here; exactly one wins,
// and the loser receives the winner's thread id to use instead.
func (s *ThreadStore) PutNX(ctx context.Context, userID, threadID string) (won bool, current string, err error) {
	key := threadKey(userID)

	won, err = s.kv.SetNX(ctx, key, threadID, s.ttl)
	if err != nil {
		return false, "", fmt.Errorf("claim thread for %s: %w", userID, err)
	}
	if won {
		return true, threadID, nil
	}

	val, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, "", fmt.Errorf("read winning thread for %s: %w", userID, err)
	}
	if !ok {
		// The winner expired between SetNX and Get. Rare; take the slot.
		if err := s.kv.Set(ctx, key, threadID, s.ttl); err != nil {
			return false, "", fmt.Errorf("reclaim thread for %s: %w", userID, err)
		}
		return true, threadID, nil
	}
	return false, val, nil
}

// Refresh extends the TTL of a live thread (sliding expiration).
// Returns false if the thread expired in the meantime.
func (s *ThreadStore) Refresh(ctx context.Context, userID string) (bool, error) {
	ok, err := s.kv.Expire(ctx, threadKey(userID), s.ttl)
	if err != nil {
		return false, fmt.Errorf("refresh thread for %s: %w", userID, err)
	}
	return ok, nil
}
