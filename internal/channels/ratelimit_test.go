package channels

import (
	"fmt"
	"testing"
	"time"
)

func TestFloodGuardAllow(t *testing.T) {
	g := NewFloodGuard(time.Minute, 3)

	for i := 0; i < 3; i++ {
		if !g.Allow("1.2.3.4") {
			t.Fatalf("hit %d should be allowed", i+1)
		}
	}
	if g.Allow("1.2.3.4") {
		t.Fatal("hit 4 should be blocked")
	}

	// An unrelated source has its own window.
	if !g.Allow("5.6.7.8") {
		t.Fatal("different key should be allowed")
	}
}

func TestFloodGuardDisabled(t *testing.T) {
	g := NewFloodGuard(time.Minute, 0)
	for i := 0; i < 100; i++ {
		if !g.Allow("1.2.3.4") {
			t.Fatal("a zero maxHits guard must allow everything")
		}
	}
}

func TestFloodGuardWindowReset(t *testing.T) {
	g := NewFloodGuard(10*time.Millisecond, 1)

	if !g.Allow("k") {
		t.Fatal("first hit should be allowed")
	}
	if g.Allow("k") {
		t.Fatal("second hit in the window should be blocked")
	}

	time.Sleep(15 * time.Millisecond)
	if !g.Allow("k") {
		t.Fatal("hit after the window should be allowed")
	}
}

func TestFloodGuardKeyCap(t *testing.T) {
	g := NewFloodGuard(time.Minute, 5)

	// Rotating keys beyond the cap must not grow the map unbounded.
	for i := 0; i < maxTrackedKeys*2; i++ {
		g.Allow(fmt.Sprintf("key-%d", i))
	}

	g.mu.Lock()
	n := len(g.entries)
	g.mu.Unlock()
	if n > maxTrackedKeys {
		t.Fatalf("tracked keys = %d, want <= %d", n, maxTrackedKeys)
	}
}
