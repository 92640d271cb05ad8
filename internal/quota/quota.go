package quota

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Counter counts records created at or after a timestamp.
type Counter interface {
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Remaining computes max(0, dailyLimit - created today).
func Remaining(ctx context.Context, counter Counter, dailyLimit int, now time.Time) (int, error) {
	if dailyLimit <= 0 {
		return 0, nil
	}
	created, err := counter.CountSince(ctx, StartOfDay(now))
	if err != nil {
		return 0, fmt.Errorf("count records created today: %w", err)
	}
	if left := dailyLimit - created; left > 0 {
		return left, nil
	}
	return 0, nil
}

// Tracker enforces the capacity computed once at run start.
type Tracker struct {
	mu       sync.Mutex
	capacity int
	used     int
}

// NewTracker computes the remaining capacity for today and returns a tracker holding it.
func NewTracker(ctx context.Context, counter Counter, dailyLimit int, now time.Time) (*Tracker, error) {
	capacity, err := Remaining(ctx, counter, dailyLimit, now)
	if err != nil {
		return nil, err
	}
	return &Tracker{capacity: capacity}, nil
}

// TryAcquire takes one slot and reports whether one was available.
func (t *Tracker) TryAcquire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.used >= t.capacity {
		return false
	}
	t.used++
	return true
}

// Release returns a slot whose item was never persisted.
func (t *Tracker) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.used > 0 {
		t.used--
	}
}

// Left returns the number of free slots.
func (t *Tracker) Left() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.capacity - t.used
}

// Capacity is the remaining capacity computed at run start.
func (t *Tracker) Capacity() int {
	return t.capacity
}
