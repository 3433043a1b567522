// Package types defines the data model shared across the storage engine:
// timestamps, durability, secondary-index records, modification reports,
// the backfill chunk variants and the artificial-table row model. See doc.go for an overview of how these fit
// together.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Timestamp is a monotonic replication timestamp carried on every write and
// on every backfill chunk. It is comparable with ordinary integer ops.
type Timestamp uint64

// DistantPast is the timestamp used for operations with no meaningful
// recency (store creation, sindex clearing passes).
const DistantPast Timestamp = 0

// Durability selects the fsync behavior of a write transaction.
type Durability int

const (
	// DurabilitySoft batches commits and does not force fsync before
	// returning.
	DurabilitySoft Durability = iota
	// DurabilityHard forces fsync before the write transaction returns,
	// so that the caller's commit is durable across a crash.
	DurabilityHard
)

// SindexName is the pair (human name, being-deleted flag) from spec §3.
// Live indexes have BeingDeleted=false; tombstoned indexes live under the
// synthetic name computed from their UUID.
type SindexName struct {
	Name         string
	BeingDeleted bool
}

// TombstoneName computes the synthetic `_DEL_<uuid>` name a sindex record
// is re-keyed under during mark-deleted (spec §4.4, phase 1).
func TombstoneName(id uuid.UUID) SindexName {
	return SindexName{Name: "_DEL_" + id.String(), BeingDeleted: true}
}

// SecondaryIndex is the persistent sindex-block record (spec §3).
type SecondaryIndex struct {
	ID                       uuid.UUID
	Superblock               uint64
	OpaqueDefinition         []byte
	PostConstructionComplete bool
	BeingDeleted             bool
}

// IsReady implements spec invariant 3: is_ready ≡ post_construction_complete
// ∧ ¬being_deleted.
func (s *SecondaryIndex) IsReady() bool {
	return s.PostConstructionComplete && !s.BeingDeleted
}

// SindexDefinition is the caller-supplied shape of a secondary index: the
// serialized mapping function plus flags, compared structurally by
// equivalence (spec §4.4).
type SindexDefinition struct {
	Multi        bool
	Geo          bool
	QueryVersion string
	Mapping      []byte
}

// Equivalent implements the equivalence check of spec §4.4: two
// definitions are equivalent iff their multi/geo flags and query-language
// version match and their serialized mapping byte-strings are equal.
func (d SindexDefinition) Equivalent(other SindexDefinition) bool {
	if d.Multi != other.Multi || d.Geo != other.Geo || d.QueryVersion != other.QueryVersion {
		return false
	}
	if len(d.Mapping) != len(other.Mapping) {
		return false
	}
	for i := range d.Mapping {
		if d.Mapping[i] != other.Mapping[i] {
			return false
		}
	}
	return true
}

// SindexStatus is the public, read-only view of a sindex's lifecycle state
// returned by Catalog.Status / Catalog.List in pkg/sindex.
type SindexStatus struct {
	Name                     string
	ID                       uuid.UUID
	PostConstructionComplete bool
	BeingDeleted             bool
	Ready                    bool
}

// ModReport is a single key's old-to-new transition, sufficient to update
// every secondary index (spec GLOSSARY: Mod-report).
type ModReport struct {
	PrimaryKey []byte
	OldValue   []byte // nil if this was an insert
	NewValue   []byte // nil if this was a deletion
	Timestamp  Timestamp
}

// IsDelete reports whether this mod-report represents a key's removal.
func (m ModReport) IsDelete() bool { return m.NewValue == nil }

// IsInsert reports whether this mod-report represents a brand-new key.
func (m ModReport) IsInsert() bool { return m.OldValue == nil }

// BackfillChunkKind discriminates the backfill chunk sum type (spec §4.6).
type BackfillChunkKind int

const (
	ChunkDeleteKey BackfillChunkKind = iota
	ChunkDeleteRange
	ChunkKeyValuePairs
	ChunkSindexes
)

// KeyValueAtom is one (key, value, recency) triple carried by a
// key_value_pairs backfill chunk.
type KeyValueAtom struct {
	Key     []byte
	Value   []byte
	Recency Timestamp
}

// BackfillChunk is the polymorphic chunk tagged variant of spec §4.6/§9,
// expressed as a sum type with a method returning its effective recency
// instead of a tagged union.
type BackfillChunk struct {
	Kind          BackfillChunkKind
	DeleteKey     []byte
	DeleteRecency Timestamp
	RangeStart    []byte
	RangeEnd      []byte
	Atoms         []KeyValueAtom
	Sindexes      map[string]SindexDefinition
}

// EffectiveTimestamp implements spec §4.6: the max recency across
// contained keys, else DistantPast.
func (c BackfillChunk) EffectiveTimestamp() Timestamp {
	switch c.Kind {
	case ChunkDeleteKey:
		return c.DeleteRecency
	case ChunkKeyValuePairs:
		var max Timestamp
		for _, a := range c.Atoms {
			if a.Recency > max {
				max = a.Recency
			}
		}
		return max
	default:
		return DistantPast
	}
}

// Row is the document model used by the artificial-table adapter: a
// primary key plus an opaque value blob (no schema beyond the key field,
// per spec §1 Non-goals).
type Row struct {
	PrimaryKey []byte
	Value      []byte
}

// ConflictPolicy selects how write_batched_insert resolves a key that
// already has a row (spec §4.7).
type ConflictPolicy int

const (
	ConflictError ConflictPolicy = iota
	ConflictReplace
	ConflictUpdate
)

// BatchStats accumulates per-row outcomes across a batched replace/insert
// (spec §4.7 step 4).
type BatchStats struct {
	Replaced  int
	Inserted  int
	Unchanged int
	Errored   int
	Deleted   int
	Skipped   int
	Errors    []error
	Warnings  []string
}

// Merge folds another BatchStats into this one; used to accumulate results
// from concurrent workers.
func (b *BatchStats) Merge(other BatchStats) {
	b.Replaced += other.Replaced
	b.Inserted += other.Inserted
	b.Unchanged += other.Unchanged
	b.Errored += other.Errored
	b.Deleted += other.Deleted
	b.Skipped += other.Skipped
	b.Errors = append(b.Errors, other.Errors...)
	b.Warnings = append(b.Warnings, other.Warnings...)
}

// Profile captures a read/write's timing breakdown, supplementing the
// distilled spec with the original's rdb_context_t-style profiling
// surface (SPEC_FULL §4.8). A nil *Profile disables collection.
type Profile struct {
	TokenWait      time.Duration
	SuperblockWait time.Duration
	Dispatch       time.Duration
}

func (p *Profile) record(field *time.Duration, since time.Time) {
	if p == nil {
		return
	}
	*field += time.Since(since)
}

// RecordTokenWait adds to the token-wait bucket if p is non-nil.
func (p *Profile) RecordTokenWait(since time.Time) {
	if p != nil {
		p.record(&p.TokenWait, since)
	}
}

// RecordSuperblockWait adds to the superblock-wait bucket if p is non-nil.
func (p *Profile) RecordSuperblockWait(since time.Time) {
	if p != nil {
		p.record(&p.SuperblockWait, since)
	}
}

// RecordDispatch adds to the dispatch bucket if p is non-nil.
func (p *Profile) RecordDispatch(since time.Time) {
	if p != nil {
		p.record(&p.Dispatch, since)
	}
}
