package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// ErrDuplicate marks a message id already claimed within the dedup window.
// Not a failure: ingestion short-circuits and acknowledges.
var ErrDuplicate = errors.New("duplicate message")

// ValidationError marks a malformed or unauthenticated inbound event.
// Resolved at ingestion; never reaches the queue.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid event: " + e.Reason
}

// RateLimitedError means a provider budget was exhausted and the bounded
// wait (if any) elapsed. Transient.
type RateLimitedError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s scope", e.Scope)
}

// ProviderError wraps a failure from the AI backend or the messaging
// channel. Transient; Timeout distinguishes hard-deadline expiry.
type ProviderError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s provider timeout: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether the dispatcher should requeue with backoff.
// Everything else is terminal at the task boundary.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, store.ErrUnavailable)
}
