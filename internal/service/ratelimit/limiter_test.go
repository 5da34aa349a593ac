package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2024, 4, 18, 14, 0, 0, 0, time.UTC)
	l := New(3, 1)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("a") {
			t.Fatalf("burst call %d should pass", i)
		}
	}
	if l.Allow("a") {
		t.Fatalf("bucket should be empty")
	}
	if !l.Allow("b") {
		t.Fatalf("keys must not share a bucket")
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.Allow("a") {
		t.Fatalf("one token should have refilled")
	}
	if l.Allow("a") {
		t.Fatalf("only one token should have refilled")
	}
}

func TestLimiterSweepsIdleKeys(t *testing.T) {
	now := time.Date(2024, 4, 18, 14, 0, 0, 0, time.UTC)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	if l.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", l.Len())
	}
	now = now.Add(2 * time.Minute)
	l.Allow("c")
	if l.Len() != 1 {
		t.Fatalf("idle keys should be swept, got %d", l.Len())
	}
}
