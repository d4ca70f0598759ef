// Package convo holds the per-conversation pieces of the chat pipeline:
// turn serialization, stream bridging and prompt assembly.
package convo

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type lockEntry struct {
	sem      chan struct{}
	refs     int
	lastUsed time.Time
}

// LockRegistry hands out one mutex per key. Entries are created on first
// use and reference counted, so Sweep only drops entries nobody holds or
// waits for.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
	now   func() time.Time
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{
		locks: make(map[string]*lockEntry),
		now:   time.Now,
	}
}

// Key identifies the lock of one conversation of one assistant.
func Key(assistantID int64, conversationID string) string {
	return strconv.FormatInt(assistantID, 10) + ":" + conversationID
}

// Acquire blocks until the lock for key is held or ctx is done. The
// returned release func is safe to call more than once.
func (r *LockRegistry) Acquire(ctx context.Context, key string) (func(), error) {
	r.mu.Lock()
	entry, ok := r.locks[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		r.locks[key] = entry
	}
	entry.refs++
	r.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		r.unref(entry)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			r.unref(entry)
		})
	}, nil
}

func (r *LockRegistry) unref(entry *lockEntry) {
	r.mu.Lock()
	entry.refs--
	entry.lastUsed = r.now()
	r.mu.Unlock()
}

// Len reports how many conversation locks are currently tracked.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// Sweep drops entries that are unreferenced and unused for at least idle.
func (r *LockRegistry) Sweep(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for key, entry := range r.locks {
		if entry.refs > 0 || now.Sub(entry.lastUsed) < idle {
			continue
		}
		delete(r.locks, key)
		removed++
	}
	return removed
}
