package sindex

import (
	"sync"

	"github.com/shardcore/engine/pkg/region"
)

// ProgressTracker records the high-water mark a backfill has reached for
// one secondary index under construction, expressed as the region of
// the primary key-space that has already been folded into the index.
// Readers consult it to decide whether a query must fall back to a
// table scan (spec §4.3: "reads against an index under construction are
// answered by scanning, not by the partial index").
type ProgressTracker struct {
	mu       sync.RWMutex
	done     map[string]region.Region // keyed by sindex id
	complete map[string]bool
}

// NewProgressTracker returns a tracker with no recorded progress.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		done:     make(map[string]region.Region),
		complete: make(map[string]bool),
	}
}

// Advance records that region r of id's key-space has been backfilled.
func (p *ProgressTracker) Advance(id string, r region.Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.done[id]
	if !ok {
		p.done[id] = r
		return
	}
	p.done[id] = cur.Union(r)
}

// MarkComplete records that id has finished construction entirely.
func (p *ProgressTracker) MarkComplete(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.complete[id] = true
	delete(p.done, id)
}

// Covers reports whether id's backfill has already folded in region r,
// meaning a read against r can safely use the (partial) index.
func (p *ProgressTracker) Covers(id string, r region.Region) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.complete[id] {
		return true
	}
	done, ok := p.done[id]
	if !ok {
		return false
	}
	return done.ContainsRegion(r)
}

// Reset discards any tracked progress for id, e.g. after a failed
// construction attempt is retried from scratch.
func (p *ProgressTracker) Reset(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.done, id)
	delete(p.complete, id)
}
