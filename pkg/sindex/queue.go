package sindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/shardcore/engine/pkg/engineerr"
	"github.com/shardcore/engine/pkg/log"
	"github.com/shardcore/engine/pkg/metrics"
	"github.com/shardcore/engine/pkg/types"
)

// QueueRegistry backs the per-consumer mod-report queues of spec §4.5:
// while a secondary index is under construction, its post-construction
// consumer registers a queue here and must see every write that arrives
// after it started, in order, until it catches up and deregisters.
// Rather than buffer reports in memory, each registered
// consumer gets its own disk-backed append log, repurposing
// raft-boltdb's LogStore the way the corpus's manager/poc packages use
// it for raft's own write-ahead log, but here as a plain durable queue
// with no consensus attached.
type QueueRegistry struct {
	dir string

	mu        sync.Mutex
	consumers map[string]*consumerQueue // keyed by consumer id
}

type consumerQueue struct {
	store *raftboltdb.BoltStore
	path  string
	mu    sync.Mutex
	next  uint64 // next index to assign
}

// NewQueueRegistry returns a registry that stores each consumer's queue
// under dir/<consumer-id>.db.
func NewQueueRegistry(dir string) (*QueueRegistry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sindex: create queue dir: %w", err)
	}
	return &QueueRegistry{dir: dir, consumers: make(map[string]*consumerQueue)}, nil
}

// Register opens (or reopens) the durable queue for consumerID. Calling
// Register for an id that is already registered is a no-op.
func (r *QueueRegistry) Register(consumerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.consumers[consumerID]; ok {
		return nil
	}

	path := filepath.Join(r.dir, consumerID+".db")
	store, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return fmt.Errorf("sindex: open consumer queue %s: %w", consumerID, err)
	}
	last, err := store.LastIndex()
	if err != nil {
		store.Close()
		return fmt.Errorf("sindex: read last index for %s: %w", consumerID, err)
	}
	r.consumers[consumerID] = &consumerQueue{store: store, path: path, next: last + 1}
	metrics.QueuesRegistered.Inc()
	log.WithSindex(consumerID).Debug().Msg("registered post-construction consumer")
	return nil
}

// Deregister closes and removes consumerID's queue. Ordinary
// deregistration happens once the consumer reports it has caught up;
// the disk file is removed so a stale queue never accumulates.
func (r *QueueRegistry) Deregister(consumerID string) error {
	r.mu.Lock()
	c, ok := r.consumers[consumerID]
	delete(r.consumers, consumerID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	metrics.QueuesRegistered.Dec()
	if err := c.store.Close(); err != nil {
		return err
	}
	return os.Remove(c.path)
}

// EmergencyDeregister is Deregister's counterpart for spec §4.5's
// "emergency_deregister is legal only while the drainer is draining"
// path: the store is being torn down and every outstanding consumer is
// dropped regardless of catch-up state. Callers are expected to have
// already confirmed the owning drainer is draining.
func (r *QueueRegistry) EmergencyDeregister(consumerID string) error {
	return r.Deregister(consumerID)
}

// Push appends report to every currently registered consumer's queue,
// stamping each with that consumer's next sequential index. Order
// across calls to Push is the caller's responsibility to serialize
// (see TicketQueue), since interleaved Push calls from independent
// writes would otherwise reorder what each consumer observes.
func (r *QueueRegistry) Push(report types.ModReport) error {
	r.mu.Lock()
	consumers := make([]*consumerQueue, 0, len(r.consumers))
	for _, c := range r.consumers {
		consumers = append(consumers, c)
	}
	r.mu.Unlock()

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("sindex: marshal mod report: %w", err)
	}

	for _, c := range consumers {
		c.mu.Lock()
		entry := &raft.Log{Index: c.next, Type: raft.LogCommand, Data: data}
		err := c.store.StoreLog(entry)
		if err == nil {
			c.next++
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("sindex: store mod report: %w", err)
		}
	}
	return nil
}

// Drain reads every queued report for consumerID starting at fromIndex
// (inclusive), used by a post-construction consumer to catch up after a
// restart. The returned reports are left on the queue; the caller
// acknowledges consumption by recording the last index it applied and
// passing that +1 as fromIndex next time.
func (r *QueueRegistry) Drain(consumerID string, fromIndex uint64) ([]types.ModReport, uint64, error) {
	r.mu.Lock()
	c, ok := r.consumers[consumerID]
	r.mu.Unlock()
	if !ok {
		return nil, 0, engineerr.NotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	first, err := c.store.FirstIndex()
	if err != nil {
		return nil, fromIndex, fmt.Errorf("sindex: first index: %w", err)
	}
	last, err := c.store.LastIndex()
	if err != nil {
		return nil, fromIndex, fmt.Errorf("sindex: last index: %w", err)
	}
	if last < first || last == 0 {
		return nil, fromIndex, nil
	}
	if fromIndex < first {
		fromIndex = first
	}

	var reports []types.ModReport
	var entry raft.Log
	idx := fromIndex
	for ; idx <= last; idx++ {
		if err := c.store.GetLog(idx, &entry); err != nil {
			return nil, idx, fmt.Errorf("sindex: get log %d: %w", idx, err)
		}
		var report types.ModReport
		if err := json.Unmarshal(entry.Data, &report); err != nil {
			return nil, idx, fmt.Errorf("sindex: unmarshal mod report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, last + 1, nil
}

// Trim discards every queued entry up to and including throughIndex
// from each registered consumer's queue, bounding disk growth for
// consumers that are keeping up.
func (r *QueueRegistry) Trim(throughIndex uint64) error {
	r.mu.Lock()
	consumers := make([]*consumerQueue, 0, len(r.consumers))
	for _, c := range r.consumers {
		consumers = append(consumers, c)
	}
	r.mu.Unlock()

	for _, c := range consumers {
		c.mu.Lock()
		first, err := c.store.FirstIndex()
		if err == nil && first > 0 && first <= throughIndex {
			err = c.store.DeleteRange(first, throughIndex)
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("sindex: trim queue: %w", err)
		}
	}
	return nil
}

// Close closes every registered consumer's queue without removing its
// backing file, so queues survive process restarts.
func (r *QueueRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, c := range r.consumers {
		if err := c.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sindex: close queue %s: %w", id, err)
		}
	}
	return firstErr
}
