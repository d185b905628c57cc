package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"roomgate/internal/limiter"
	"roomgate/internal/models"
	"roomgate/internal/storage"
)

// fakeChecker returns canned answers and counts calls.
type fakeChecker struct {
	mu      sync.Mutex
	result  models.RateLimitResult
	err     error
	calls   map[string]int
	cleanup models.CleanupResult
}

func newFakeChecker(result models.RateLimitResult, err error) *fakeChecker {
	return &fakeChecker{result: result, err: err, calls: make(map[string]int)}
}

func (f *fakeChecker) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeChecker) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeChecker) CheckRoomCreation(ctx context.Context, identity string) (models.RateLimitResult, error) {
	f.record("room-creation:" + identity)
	return f.result, f.err
}

func (f *fakeChecker) CheckConnection(ctx context.Context, identity string) (models.RateLimitResult, error) {
	f.record("connections:" + identity)
	return f.result, f.err
}

func (f *fakeChecker) CheckAPIRate(ctx context.Context, identity string) (models.RateLimitResult, error) {
	f.record("api:" + identity)
	return f.result, f.err
}

func (f *fakeChecker) CheckCallDuration(ctx context.Context, roomID string) (models.CallDurationResult, error) {
	f.record("call-duration:" + roomID)
	return models.CallDurationResult{}, f.err
}

func (f *fakeChecker) MarkRoomEmpty(ctx context.Context, roomID string) error {
	f.record("empty:" + roomID)
	return f.err
}

func (f *fakeChecker) MarkRoomActive(ctx context.Context, roomID string) error {
	f.record("active:" + roomID)
	return f.err
}

func (f *fakeChecker) EndCall(ctx context.Context, roomID string) error {
	f.record("end:" + roomID)
	return f.err
}

func (f *fakeChecker) CleanupOldRooms(ctx context.Context) (models.CleanupResult, error) {
	f.record("cleanup")
	return f.cleanup, f.err
}

// recorder collects decisions.
type recorder struct {
	mu        sync.Mutex
	decisions []string
}

func (r *recorder) RecordDecision(ctx context.Context, check string, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, check+"="+outcome)
}

// clock is a fixed, manually advanced clock.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLocalClient(t *testing.T) (*LocalClient, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	registry := limiter.NewRegistry(storage.NewMemoryStorage(), limiter.WithClock(clk.Now))
	return NewLocalClient(registry), clk
}
