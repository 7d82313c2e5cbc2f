package memory

import (
	"context"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	kv := New()
	ctx := context.Background()

	if _, ok, _ := kv.Get(ctx, "missing"); ok {
		t.Fatal("expected missing key")
	}

	if err := kv.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok || val != "v" {
		t.Fatalf("Get = (%q, %v, %v), want (v, true, nil)", val, ok, err)
	}
}

func TestExpiry(t *testing.T) {
	kv := New()
	ctx := context.Background()

	now := time.Now()
	kv.SetClock(func() time.Time { return now })

	kv.Set(ctx, "k", "v", time.Minute)

	now = now.Add(30 * time.Second)
	if _, ok, _ := kv.Get(ctx, "k"); !ok {
		t.Fatal("key should still be live at half TTL")
	}

	now = now.Add(31 * time.Second)
	if _, ok, _ := kv.Get(ctx, "k"); ok {
		t.Fatal("key should have expired")
	}
}

func TestSetNX(t *testing.T) {
	kv := New()
	ctx := context.Background()

	won, err := kv.SetNX(ctx, "k", "first", time.Minute)
	if err != nil || !won {
		t.Fatalf("first SetNX = (%v, %v), want (true, nil)", won, err)
	}
	won, err = kv.SetNX(ctx, "k", "second", time.Minute)
	if err != nil || won {
		t.Fatalf("second SetNX = (%v, %v), want (false, nil)", won, err)
	}
	val, _, _ := kv.Get(ctx, "k")
	if val != "first" {
		t.Fatalf("value = %q, want first", val)
	}
}

func TestSetNXAfterExpiry(t *testing.T) {
	kv := New()
	ctx := context.Background()

	now := time.Now()
	kv.SetClock(func() time.Time { return now })

	kv.SetNX(ctx, "k", "first", time.Minute)
	now = now.Add(2 * time.Minute)

	won, _ := kv.SetNX(ctx, "k", "second", time.Minute)
	if !won {
		t.Fatal("SetNX should win after the previous value expired")
	}
}

func TestIncrWindow(t *testing.T) {
	kv := New()
	ctx := context.Background()

	now := time.Now()
	kv.SetClock(func() time.Time { return now })

	for want := int64(1); want <= 3; want++ {
		got, err := kv.IncrWindow(ctx, "c", time.Minute)
		if err != nil || got != want {
			t.Fatalf("IncrWindow = (%d, %v), want (%d, nil)", got, err, want)
		}
	}

	// A fresh key starts over after the TTL.
	now = now.Add(2 * time.Minute)
	got, _ := kv.IncrWindow(ctx, "c", time.Minute)
	if got != 1 {
		t.Fatalf("IncrWindow after expiry = %d, want 1", got)
	}
}

func TestExpire(t *testing.T) {
	kv := New()
	ctx := context.Background()

	if ok, _ := kv.Expire(ctx, "missing", time.Minute); ok {
		t.Fatal("Expire on a missing key should return false")
	}

	now := time.Now()
	kv.SetClock(func() time.Time { return now })

	kv.Set(ctx, "k", "v", time.Minute)
	now = now.Add(50 * time.Second)

	if ok, _ := kv.Expire(ctx, "k", time.Minute); !ok {
		t.Fatal("Expire on a live key should return true")
	}

	// The reset TTL outlives the original deadline.
	now = now.Add(30 * time.Second)
	if _, ok, _ := kv.Get(ctx, "k"); !ok {
		t.Fatal("key should survive past the original deadline after Expire")
	}
}
