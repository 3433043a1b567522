package backfill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPostconLockExcludesPostConstructionFromBackfill(t *testing.T) {
	l := NewPostconLock()
	l.LockPostConstruction()

	acquired := make(chan struct{})
	go func() {
		l.LockBackfill()
		close(acquired)
		l.UnlockBackfill()
	}()

	select {
	case <-acquired:
		t.Fatal("backfill chunk lock acquired while post-construction held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	l.UnlockPostConstruction()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("backfill did not acquire the lock after post-construction released it")
	}
}

func TestPostconLockAllowsConcurrentBackfillChunks(t *testing.T) {
	l := NewPostconLock()
	l.LockBackfill()
	defer l.UnlockBackfill()

	done := make(chan struct{})
	go func() {
		l.LockBackfill()
		defer l.UnlockBackfill()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second backfill chunk could not acquire the shared lock")
	}
}
