package queue

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	base := 5 * time.Second
	ceiling := 300 * time.Second

	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{6, 300 * time.Second},  // 320s capped
		{20, 300 * time.Second}, // stays capped, no overflow
	}

	for _, tt := range tests {
		if got := Backoff(base, ceiling, tt.n); got != tt.want {
			t.Errorf("Backoff(n=%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	if got := Backoff(0, 0, 0); got != 5*time.Second {
		t.Errorf("Backoff with zero base = %v, want 5s default", got)
	}
	// No cap means pure exponential growth.
	if got := Backoff(time.Second, 0, 4); got != 16*time.Second {
		t.Errorf("Backoff without cap = %v, want 16s", got)
	}
}
