// Package ratelimit implements a token bucket that paces LLM requests
// per model. Tokens refill lazily from elapsed wall clock; Acquire
// blocks for exactly the deficit instead of polling.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Bucket is a token bucket with capacity C and refill rate R tokens/sec.
// One bucket per model configuration; buckets are never shared across
// models.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

// New creates a bucket that starts full
func New(capacity int, refillPerSec float64) *Bucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillPerSec <= 0 {
		refillPerSec = 1
	}
	return &Bucket{
		capacity:   float64(capacity),
		refillRate: refillPerSec,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// refill credits tokens for the elapsed time, capped at capacity.
// Callers must hold the mutex.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// Acquire takes n tokens, blocking until the refill schedule allows it
// or ctx is canceled. n greater than the capacity can never be
// satisfied and fails immediately.
func (b *Bucket) Acquire(ctx context.Context, n int) error {
	if float64(n) > b.capacity {
		return fmt.Errorf("cannot acquire %d tokens from bucket of capacity %d", n, int(b.capacity))
	}

	for {
		b.mu.Lock()
		now := time.Now()
		b.refill(now)

		if b.tokens >= float64(n) {
			b.tokens -= float64(n)
			b.mu.Unlock()
			return nil
		}

		deficit := float64(n) - b.tokens
		wait := time.Duration(deficit / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			// Re-check under the lock; another caller may have drained
			// the refilled tokens first
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// TryAcquire takes n tokens without blocking, reporting success
func (b *Bucket) TryAcquire(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// Available returns the current token count after refill
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())
	return b.tokens
}
