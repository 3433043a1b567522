// Package drainer implements the lifetime guard of spec §3/§5: a store
// must not be destroyed while background work (sindex clear,
// post-construction, backfill chunk sends) is in flight.
//
// This generalizes the Start/Stop + stopCh idiom used by the corpus's
// background loops (reconciler.Reconciler, scheduler.Scheduler) into a
// reusable spawn-and-await-all primitive, since those loops each only
// ever track a single goroutine of their own rather than an unbounded
// set of short-lived tasks.
package drainer

import (
	"errors"
	"sync"
)

// ErrDraining is returned by Spawn once Drain has been called; no new
// background task may start after draining begins.
var ErrDraining = errors.New("drainer: already draining")

// Drainer guards a store's destruction until every task spawned through
// it has returned.
type Drainer struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	draining bool
}

// New returns a ready-to-use Drainer.
func New() *Drainer {
	return &Drainer{}
}

// Lock is a lifetime token for one spawned task: the caller must call
// Release exactly once when the task finishes.
type Lock struct {
	d *Drainer
}

// Release signals that the task holding l has finished.
func (l Lock) Release() {
	l.d.wg.Done()
}

// TryLock acquires a lifetime token for a new background task, or
// returns ErrDraining if the drainer is already draining.
func (d *Drainer) TryLock() (Lock, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draining {
		return Lock{}, ErrDraining
	}
	d.wg.Add(1)
	return Lock{d: d}, nil
}

// Spawn runs fn in a new goroutine under a lifetime token, dropping the
// task silently (logging is the caller's responsibility) if the drainer
// is already draining.
func (d *Drainer) Spawn(fn func()) error {
	lock, err := d.TryLock()
	if err != nil {
		return err
	}
	go func() {
		defer lock.Release()
		fn()
	}()
	return nil
}

// Drain marks the drainer as draining (rejecting further Spawn calls)
// and blocks until every outstanding task has released its lock.
func (d *Drainer) Drain() {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()
	d.wg.Wait()
}

// EmergencyRelease releases a lock without going through normal task
// completion; legal only while the drainer is draining (spec §4.5:
// "emergency_deregister is legal only while the drainer is draining").
func (d *Drainer) EmergencyRelease(l Lock) error {
	d.mu.Lock()
	draining := d.draining
	d.mu.Unlock()
	if !draining {
		return errors.New("drainer: emergency release outside of draining")
	}
	l.Release()
	return nil
}
