package sindex

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shardcore/engine/pkg/drainer"
	"github.com/shardcore/engine/pkg/engineerr"
	"github.com/shardcore/engine/pkg/log"
	"github.com/shardcore/engine/pkg/metrics"
	"github.com/shardcore/engine/pkg/types"
)

// ChunkSize (the spec's CHUNK_SIZE) is the batch size for a sindex's
// background clear pass (spec §4.4, Drop phase 2).
const ChunkSize = 32

// Persister is the durability boundary the catalog depends on rather
// than a concrete storage engine: pkg/store's bbolt-backed Store
// implements it, persisting the sindex-block record and the sindex's
// own data bucket. Keeping the catalog storage-agnostic mirrors how
// pkg/backfill stays agnostic of pkg/store, avoiding an import cycle
// between the two packages.
type Persister interface {
	// SaveRecord durably (over)writes rec under name, including its
	// opaque definition (mapping plus the multi/geo/query-version flags)
	// so a restart's Restore sees the same def Add was called with.
	SaveRecord(name types.SindexName, rec types.SecondaryIndex, def types.SindexDefinition) error
	// DeleteRecord durably removes the record stored under name.
	DeleteRecord(name types.SindexName) error
	// ClearChunk deletes up to ChunkSize keys from id's data bucket and
	// reports how many keys remain (best-effort; -1 if unknown).
	ClearChunk(id uuid.UUID) (remaining int, err error)
	// DeleteIndexStorage removes id's data bucket and any stat
	// sub-block entirely, once ClearChunk has emptied it.
	DeleteIndexStorage(id uuid.UUID) error
}

// RenameNotifier is the external index-report collaborator of spec
// §4.4's Rename step; the query layer (out of scope here, see pkg/collab)
// implements it to keep its own index-name caches current.
type RenameNotifier interface {
	NotifyRename(oldName, newName string)
}

type record struct {
	name types.SindexName
	idx  types.SecondaryIndex
	def  types.SindexDefinition
}

// Catalog is the in-memory sindex-block of spec §3/§4.4: the live set of
// secondary indexes for one store, their lifecycle state, and the
// machinery (ticket queue, disk-backed consumer queues, progress
// tracker) that keeps post-constructed indexes and their catch-up
// consumers consistent with the primary data.
type Catalog struct {
	mu      sync.RWMutex
	byName  map[string]*record
	byID    map[uuid.UUID]*record
	persist Persister
	notify  RenameNotifier

	Queues   *QueueRegistry
	Ticket   *TicketQueue
	Progress *ProgressTracker
	drain    *drainer.Drainer
}

// NewCatalog returns an empty catalog backed by persist.
func NewCatalog(persist Persister, queues *QueueRegistry, drain *drainer.Drainer, notify RenameNotifier) *Catalog {
	return &Catalog{
		byName:   make(map[string]*record),
		byID:     make(map[uuid.UUID]*record),
		persist:  persist,
		notify:   notify,
		Queues:   queues,
		Ticket:   NewTicketQueue(),
		Progress: NewProgressTracker(),
		drain:    drain,
	}
}

// Restore re-populates the in-memory catalog from an already-persisted
// record, without writing it back out. Used when a store opens
// existing state and rebuilds its slice map from the sindex-block
// (spec §3 Store lifecycle: "the in-memory slice map is rebuilt from
// the sindex-block"). If the record is mid-drop (tombstoned) and still
// has data on disk, the caller is responsible for re-spawning the
// background clear (see Store.loadCatalog).
func (c *Catalog) Restore(name types.SindexName, idx types.SecondaryIndex, def types.SindexDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := &record{name: name, idx: idx, def: def}
	c.byName[name.Name] = rec
	c.byID[idx.ID] = rec
}

// ResumeClear re-spawns the background clear task for a tombstoned
// index restored via Restore, picking up where a prior process left
// off (spec §3: a crash mid-clear must not leak the tombstone forever).
func (c *Catalog) ResumeClear(id uuid.UUID, tomb types.SindexName) error {
	return c.drain.Spawn(func() { c.backgroundClear(id, tomb) })
}

// Add implements spec §4.4 Add: allocates a fresh sindex record with
// post_construction_complete=false and persists it. Returns false
// without effect if name already exists (live or tombstoned).
func (c *Catalog) Add(name string, def types.SindexDefinition) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[name]; ok {
		return false, nil
	}

	idx := types.SecondaryIndex{
		ID:               uuid.New(),
		OpaqueDefinition: def.Mapping,
	}
	sn := types.SindexName{Name: name}
	rec := &record{name: sn, idx: idx, def: def}

	if err := c.persist.SaveRecord(sn, idx, def); err != nil {
		return false, fmt.Errorf("sindex: add %s: %w", name, err)
	}
	c.byName[name] = rec
	c.byID[idx.ID] = rec
	metrics.SindexCreatedTotal.Inc()
	metrics.SindexCount.WithLabelValues("building").Inc()
	log.WithSindex(name).Info().Msg("secondary index added")
	return true, nil
}

// SetSindexes implements spec §4.4's bulk-reconcile operation: drops
// every live index not named in desired, drops+readds any existing
// entry whose definition is non-equivalent, and adds whatever remains
// absent. It returns the names that were newly created.
func (c *Catalog) SetSindexes(desired map[string]types.SindexDefinition) ([]string, error) {
	c.mu.Lock()
	existing := make(map[string]types.SindexDefinition, len(c.byName))
	for name, rec := range c.byName {
		if !rec.name.BeingDeleted {
			existing[name] = rec.def
		}
	}
	c.mu.Unlock()

	for name := range existing {
		if _, ok := desired[name]; !ok {
			if err := c.Drop(name); err != nil {
				return nil, fmt.Errorf("sindex: drop stale %s: %w", name, err)
			}
		}
	}

	var created []string
	for name, def := range desired {
		if cur, ok := existing[name]; ok {
			if cur.Equivalent(def) {
				continue
			}
			if err := c.Drop(name); err != nil {
				return nil, fmt.Errorf("sindex: drop non-equivalent %s: %w", name, err)
			}
		}
		ok, err := c.Add(name, def)
		if err != nil {
			return nil, err
		}
		if ok {
			created = append(created, name)
		}
	}
	return created, nil
}

// MarkUpToDateByName flips post_construction_complete for the live
// index named name. Idempotent; reports whether a record was found.
func (c *Catalog) MarkUpToDateByName(name string) (bool, error) {
	c.mu.Lock()
	rec, ok := c.byName[name]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, c.markUpToDate(rec)
}

// MarkUpToDateByID is MarkUpToDateByName's UUID-keyed counterpart.
func (c *Catalog) MarkUpToDateByID(id uuid.UUID) (bool, error) {
	c.mu.Lock()
	rec, ok := c.byID[id]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, c.markUpToDate(rec)
}

func (c *Catalog) markUpToDate(rec *record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec.idx.PostConstructionComplete {
		return nil
	}
	rec.idx.PostConstructionComplete = true
	c.Progress.MarkComplete(rec.idx.ID.String())
	if err := c.persist.SaveRecord(rec.name, rec.idx, rec.def); err != nil {
		return fmt.Errorf("sindex: mark up to date: %w", err)
	}
	metrics.SindexCount.WithLabelValues("building").Dec()
	metrics.SindexCount.WithLabelValues("ready").Inc()
	log.WithSindex(rec.name.Name).Info().Msg("secondary index construction complete")
	return nil
}

// Rename implements spec §4.4 Rename: atomically re-keys the record
// from oldName to newName and notifies the external index-report
// collaborator. Per-index counters are labelled by UUID, so none needs
// renaming. Fails if newName is taken or if either name is a tombstone.
func (c *Catalog) Rename(oldName, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.byName[oldName]
	if !ok {
		return engineerr.NotFound
	}
	if rec.name.BeingDeleted {
		return fmt.Errorf("sindex: cannot rename tombstoned index %s", oldName)
	}
	if _, taken := c.byName[newName]; taken {
		return fmt.Errorf("sindex: target name %s already exists", newName)
	}

	oldSn := rec.name
	newSn := types.SindexName{Name: newName}
	if err := c.persist.DeleteRecord(oldSn); err != nil {
		return fmt.Errorf("sindex: rename: delete old record: %w", err)
	}
	if err := c.persist.SaveRecord(newSn, rec.idx, rec.def); err != nil {
		return fmt.Errorf("sindex: rename: save new record: %w", err)
	}

	delete(c.byName, oldName)
	rec.name = newSn
	c.byName[newName] = rec

	if c.notify != nil {
		c.notify.NotifyRename(oldName, newName)
	}
	log.Info(fmt.Sprintf("secondary index renamed %s -> %s", oldName, newName))
	return nil
}

// Drop implements spec §4.4 Drop phase 1 (mark-deleted): it re-keys the
// record under its tombstone name, synchronously, and then spawns the
// phase-2 background clear under the catalog's drainer. Must not be
// called while the caller is itself holding the store's write lock on
// the catalog's own persistence layer (it opens its own transactions).
func (c *Catalog) Drop(name string) error {
	c.mu.Lock()
	rec, ok := c.byName[name]
	if !ok {
		c.mu.Unlock()
		return engineerr.NotFound
	}
	if rec.name.BeingDeleted {
		c.mu.Unlock()
		return nil
	}

	oldSn := rec.name
	tomb := types.TombstoneName(rec.idx.ID)
	rec.idx.BeingDeleted = true

	if err := c.persist.DeleteRecord(oldSn); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("sindex: drop: delete live record: %w", err)
	}
	if err := c.persist.SaveRecord(tomb, rec.idx, rec.def); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("sindex: drop: save tombstone: %w", err)
	}

	delete(c.byName, name)
	rec.name = tomb
	c.byName[tomb.Name] = rec
	metrics.SindexDroppedTotal.Inc()
	if rec.idx.PostConstructionComplete {
		metrics.SindexCount.WithLabelValues("ready").Dec()
	} else {
		metrics.SindexCount.WithLabelValues("building").Dec()
	}
	metrics.SindexCount.WithLabelValues("tombstoned").Inc()
	c.mu.Unlock()

	log.WithSindex(name).Info().Msg("secondary index marked for deletion")

	id := rec.idx.ID
	err := c.drain.Spawn(func() { c.backgroundClear(id, tomb) })
	if err != nil {
		// Drainer already draining: the store is being torn down, so
		// leaking the tombstone's storage is acceptable (spec §4.4:
		// "leaking blocks is preferable to losing availability").
		log.WithSindex(name).Warn().Msg("could not spawn background clear, store is draining")
	}
	return nil
}

// backgroundClear implements spec §4.4 Drop phase 2: it repeatedly
// clears ChunkSize keys at a time until the index's storage is empty,
// then removes the tombstone record and the index's storage entirely.
func (c *Catalog) backgroundClear(id uuid.UUID, tomb types.SindexName) {
	for {
		remaining, err := c.persist.ClearChunk(id)
		metrics.SindexClearChunksTotal.Inc()
		if err != nil {
			log.WithSindex(tomb.Name).Warn().Msg("background clear chunk failed, will not retry: " + err.Error())
			return
		}
		if remaining == 0 {
			break
		}
	}

	if err := c.persist.DeleteIndexStorage(id); err != nil {
		log.WithSindex(tomb.Name).Warn().Msg("failed to delete drained index storage, leaking blocks: " + err.Error())
	}
	if err := c.persist.DeleteRecord(tomb); err != nil {
		log.WithSindex(tomb.Name).Warn().Msg("failed to delete tombstone record: " + err.Error())
	}

	c.mu.Lock()
	delete(c.byName, tomb.Name)
	delete(c.byID, id)
	c.mu.Unlock()
	c.Progress.Reset(id.String())
	metrics.SindexCount.WithLabelValues("tombstoned").Dec()
	metrics.SindexClearedTotal.Inc()
	log.WithSindex(tomb.Name).Info().Msg("secondary index fully cleared")
}

// resolve looks up name under the read lock, distinguishing not-found
// from not-ready per spec §4.4 acquire-for-{read,write}.
func (c *Catalog) resolve(name string) (*record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.byName[name]
	if !ok {
		return nil, engineerr.NotFound
	}
	if !rec.idx.IsReady() {
		return nil, engineerr.SindexNotReady(name, rec.idx.BeingDeleted)
	}
	return rec, nil
}

// AcquireForRead resolves name to its secondary index record, failing
// with SindexNotReady if the index isn't ready for queries yet.
func (c *Catalog) AcquireForRead(name string) (types.SecondaryIndex, error) {
	rec, err := c.resolve(name)
	if err != nil {
		return types.SecondaryIndex{}, err
	}
	return rec.idx, nil
}

// AcquireForWrite is AcquireForRead's counterpart; the catalog itself
// does not distinguish read/write acquisition modes (that's a property
// of the storage transaction the caller opens against the returned
// index's own bucket), but the name is kept for symmetry with spec §4.4.
func (c *Catalog) AcquireForWrite(name string) (types.SecondaryIndex, error) {
	return c.AcquireForRead(name)
}

// List returns the public status of every index, live and tombstoned.
func (c *Catalog) List() []types.SindexStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.SindexStatus, 0, len(c.byName))
	for _, rec := range c.byName {
		out = append(out, types.SindexStatus{
			Name:                     rec.name.Name,
			ID:                       rec.idx.ID,
			PostConstructionComplete: rec.idx.PostConstructionComplete,
			BeingDeleted:             rec.idx.BeingDeleted,
			Ready:                    rec.idx.IsReady(),
		})
	}
	return out
}

// Definition returns the caller-supplied definition for a live or
// tombstoned index by name, used by the backfill sindexes chunk (spec
// §4.6) to advertise the local catalog's shape to a remote consumer.
func (c *Catalog) Definition(name string) (types.SindexDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.byName[name]
	if !ok {
		return types.SindexDefinition{}, false
	}
	return rec.def, true
}

// DefinitionByID returns the definition for the live or tombstoned
// record with this ID, used by Store.applyModReports to look up the
// mapping definition it hands the query evaluator for a given index.
func (c *Catalog) DefinitionByID(id uuid.UUID) (types.SindexDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.byID[id]
	if !ok {
		return types.SindexDefinition{}, false
	}
	return rec.def, true
}

// Status returns the public status of a single index by name.
func (c *Catalog) Status(name string) (types.SindexStatus, error) {
	c.mu.RLock()
	rec, ok := c.byName[name]
	c.mu.RUnlock()
	if !ok {
		return types.SindexStatus{}, engineerr.NotFound
	}
	return types.SindexStatus{
		Name:                     rec.name.Name,
		ID:                       rec.idx.ID,
		PostConstructionComplete: rec.idx.PostConstructionComplete,
		BeingDeleted:             rec.idx.BeingDeleted,
		Ready:                    rec.idx.IsReady(),
	}, nil
}

// PostConstructedIDs returns the UUIDs of every index eligible for
// synchronous mod-report application (spec §4.5 step 2): post
// constructed, whether live or tombstoned (invariant 4 — in-flight
// readers of a tombstoned-but-post-constructed index must keep seeing
// correct entries until its background clear catches up).
func (c *Catalog) PostConstructedIDs() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []uuid.UUID
	for id, rec := range c.byID {
		if rec.idx.PostConstructionComplete {
			ids = append(ids, id)
		}
	}
	return ids
}

// ApplyModReports implements spec §4.5's per-mutation pipeline: a
// write-time applier func is run against every post-constructed index
// while the caller still holds its write transaction, and afterward the
// batch is fanned out to every registered disk-backed consumer queue in
// sindex-block acquisition order via the catalog's TicketQueue.
//
// ticket must have been drawn with c.Ticket.Take() at the point the
// caller acquired the sindex-block (spec step 1: "acquire an in-line
// position ... pinned to the sindex-block's acquisition order").
func (c *Catalog) ApplyModReports(ticket uint64, reports []types.ModReport, apply func(id uuid.UUID, r types.ModReport) error) error {
	for _, id := range c.PostConstructedIDs() {
		for _, r := range reports {
			if err := apply(id, r); err != nil {
				// Pass this ticket's turn on so later tickets are not blocked.
				c.Ticket.WaitForTurn(ticket)
				c.Ticket.Advance(ticket)
				return fmt.Errorf("sindex: apply mod report to %s: %w", id, err)
			}
			metrics.ModReportsAppliedTotal.WithLabelValues(id.String()).Inc()
		}
	}

	c.Ticket.WaitForTurn(ticket)
	defer c.Ticket.Advance(ticket)

	for _, r := range reports {
		if err := c.Queues.Push(r); err != nil {
			return fmt.Errorf("sindex: fan out mod report: %w", err)
		}
	}
	metrics.QueuePushesTotal.Inc()
	return nil
}
