package store

import (
	"context"
	"fmt"
	"time"
)

// Guard suppresses duplicate processing of the same message id within the
// dedup window. The claim is a single atomic set-if-absent: under N
// concurrent deliveries of one message id, exactly one Claim returns true.
type Guard struct {
	kv     KV
	window time.Duration
}

// NewGuard creates an idempotency guard with the given dedup window.
func NewGuard(kv KV, window time.Duration) *Guard {
	return &Guard{kv: kv, window: window}
}

// Claim records the first sighting of a message id. Returns false when the
// id was already claimed within the window (duplicate delivery).
func (g *Guard) Claim(ctx context.Context, messageID string) (bool, error) {
	firstSeen := time.Now().UTC().Format(time.RFC3339Nano)
	won, err := g.kv.SetNX(ctx, seenKeyPrefix+messageID, firstSeen, g.window)
	if err != nil {
		return false, fmt.Errorf("claim message %s: %w", messageID, err)
	}
	return won, nil
}
