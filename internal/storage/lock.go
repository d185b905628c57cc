package storage

import (
	"context"
	"sync"
)

// keyLocks is an in-process lock table for backends only one process opens.
// The zero value is ready to use.
type keyLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func (l *keyLocks) lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = make(map[string]chan struct{})
	}
	slot, ok := l.slots[name]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[name] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
