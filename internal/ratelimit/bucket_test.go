package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireWithinCapacityIsImmediate(t *testing.T) {
	b := New(5, 1)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := b.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("draining a full bucket should not block, took %v", elapsed)
	}
}

func TestAcquireBlocksForRefill(t *testing.T) {
	// Capacity 2, 50 tokens/sec: 6 acquires need at least (6-2)/50 = 80ms
	b := New(2, 50)

	start := time.Now()
	for i := 0; i < 6; i++ {
		if err := b.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 80*time.Millisecond {
		t.Errorf("expected at least 80ms for refill, took %v", elapsed)
	}
}

func TestAcquireRespectsCancellation(t *testing.T) {
	b := New(1, 0.001) // effectively never refills

	if err := b.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Acquire(ctx, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestAcquireMoreThanCapacityFails(t *testing.T) {
	b := New(2, 1)
	if err := b.Acquire(context.Background(), 3); err == nil {
		t.Error("expected error acquiring beyond capacity")
	}
}

func TestRefillCapsAtCapacity(t *testing.T) {
	b := New(2, 1000)
	time.Sleep(20 * time.Millisecond)
	if got := b.Available(); got > 2 {
		t.Errorf("expected refill capped at capacity 2, got %f", got)
	}
}

func TestTryAcquire(t *testing.T) {
	b := New(1, 0.001)
	if !b.TryAcquire(1) {
		t.Error("expected first TryAcquire to succeed")
	}
	if b.TryAcquire(1) {
		t.Error("expected second TryAcquire to fail on empty bucket")
	}
}
