// Package backfill holds the storage-agnostic primitives shared by the
// backfill producer/consumer and secondary-index construction: the
// read/write lock that keeps the two from running concurrently, and the
// start-point type and coverage check a producer validates before a
// send. The chunk protocol itself and the actual tree walk live on
// pkg/store's Store, since they need direct bbolt access; this package
// stays free of that dependency so pkg/store can depend on pkg/backfill
// without a cycle.
package backfill

import "sync"

// PostconLock implements spec §4.6's backfill_postcon_lock: backfill
// chunk application takes it in read mode (many chunks may apply
// concurrently), secondary-index post-construction takes it in write
// mode (exclusive), guaranteeing the two never run at once.
type PostconLock struct {
	mu sync.RWMutex
}

// NewPostconLock returns an unlocked PostconLock.
func NewPostconLock() *PostconLock {
	return &PostconLock{}
}

// LockBackfill acquires the lock in the shared mode backfill chunk
// application uses; callers must call UnlockBackfill when the chunk's
// transaction has committed.
func (l *PostconLock) LockBackfill() {
	l.mu.RLock()
}

// UnlockBackfill releases a LockBackfill acquisition.
func (l *PostconLock) UnlockBackfill() {
	l.mu.RUnlock()
}

// LockPostConstruction acquires the lock in the exclusive mode
// secondary-index construction uses while traversing the primary tree.
func (l *PostconLock) LockPostConstruction() {
	l.mu.Lock()
}

// UnlockPostConstruction releases a LockPostConstruction acquisition.
func (l *PostconLock) UnlockPostConstruction() {
	l.mu.Unlock()
}
