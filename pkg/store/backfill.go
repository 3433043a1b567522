package store

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/shardcore/engine/pkg/backfill"
	"github.com/shardcore/engine/pkg/log"
	"github.com/shardcore/engine/pkg/metrics"
	"github.com/shardcore/engine/pkg/types"
)

// BackfillCallback is offered one chunk at a time and decides whether to
// keep receiving (spec §4.6 Send: "if the callback accepts").
type BackfillCallback func(types.BackfillChunk) (accept bool, err error)

// SendBackfill implements spec §4.6 Send: given per-region start-points
// and a callback, it acquires a read transaction (the "backfill
// superblock and its sindex-block read") and streams every key of the
// primary bucket as key_value_pairs chunks, each atom stamped with its
// region's start-point timestamp, followed by a trailing sindexes chunk
// synchronizing the catalog. Keys are not filtered by recency (no
// per-key recency is stored), and metainfo is neither read nor masked
// nor handed to the callback. Once the callback declines a chunk,
// nothing further is sent, including the sindexes chunk.
//
// SendBackfill takes the backfill/postcon lock in read mode for the
// whole pass rather than per-chunk: unlike Receive (which must let
// cache back-pressure throttle the sender one HARD-durability
// transaction at a time), a send is read-only and a single bbolt
// view transaction already gives it a consistent snapshot, so there is
// no equivalent back-pressure point to stage the lock acquisition
// around.
func (s *Store) SendBackfill(points []backfill.StartPoint, cb BackfillCallback) error {
	if err := backfill.ValidateCoverage(points); err != nil {
		return fmt.Errorf("store: send backfill: %w", err)
	}

	s.Postcon.LockBackfill()
	defer s.Postcon.UnlockBackfill()

	const batchSize = 256
	declined := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPrimary)
		c := b.Cursor()

		var atoms []types.KeyValueAtom
		flush := func() (bool, error) {
			if len(atoms) == 0 {
				return true, nil
			}
			chunk := types.BackfillChunk{Kind: types.ChunkKeyValuePairs, Atoms: atoms}
			atoms = atoms[:0]
			metrics.BackfillChunksSentTotal.Inc()
			return cb(chunk)
		}

		for k, v := c.First(); k != nil; k, v = c.Next() {
			recency := backfill.TimestampFor(points, k)
			atoms = append(atoms, types.KeyValueAtom{
				Key:     append([]byte(nil), k...),
				Value:   append([]byte(nil), v...),
				Recency: recency,
			})
			if len(atoms) >= batchSize {
				accept, err := flush()
				if err != nil {
					return err
				}
				if !accept {
					declined = true
					return nil
				}
			}
		}
		accept, err := flush()
		declined = !accept
		return err
	})
	if err != nil {
		return fmt.Errorf("store: send backfill: %w", err)
	}
	if declined {
		return nil
	}

	sindexChunk := types.BackfillChunk{Kind: types.ChunkSindexes, Sindexes: s.sindexDefinitions()}
	metrics.BackfillChunksSentTotal.Inc()
	_, err = cb(sindexChunk)
	return err
}

func (s *Store) sindexDefinitions() map[string]types.SindexDefinition {
	defs := make(map[string]types.SindexDefinition)
	for _, status := range s.Catalog.List() {
		if status.BeingDeleted {
			continue
		}
		if def, ok := s.Catalog.Definition(status.Name); ok {
			defs[status.Name] = def
		}
	}
	return defs
}

// ReceiveBackfill implements spec §4.6 Receive: applies one chunk under
// a HARD-durability write transaction, so that bbolt's commit latency
// (cache back-pressure, per spec) throttles the sender if it cannot
// keep up. The backfill/postcon lock is taken in read mode for the
// duration of applying this one chunk, guaranteeing no sindex
// post-construction pass starts concurrently with it.
func (s *Store) ReceiveBackfill(chunk types.BackfillChunk) error {
	s.Postcon.LockBackfill()
	defer s.Postcon.UnlockBackfill()

	durability := types.DurabilityHard
	s.db.NoSync = durability == types.DurabilitySoft

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BackfillApplyDuration)

	var reports []types.ModReport
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPrimary)
		switch chunk.Kind {
		case types.ChunkDeleteKey:
			old := b.Get(chunk.DeleteKey)
			if old == nil {
				return nil
			}
			oldCopy := append([]byte(nil), old...)
			if err := b.Delete(chunk.DeleteKey); err != nil {
				return err
			}
			reports = append(reports, types.ModReport{PrimaryKey: chunk.DeleteKey, OldValue: oldCopy, Timestamp: chunk.DeleteRecency})

		case types.ChunkDeleteRange:
			c := b.Cursor()
			var toDelete [][2][]byte
			for k, v := c.Seek(chunk.RangeStart); k != nil && (chunk.RangeEnd == nil || string(k) < string(chunk.RangeEnd)); k, v = c.Next() {
				toDelete = append(toDelete, [2][]byte{append([]byte(nil), k...), append([]byte(nil), v...)})
			}
			for _, kv := range toDelete {
				if err := b.Delete(kv[0]); err != nil {
					return err
				}
				reports = append(reports, types.ModReport{PrimaryKey: kv[0], OldValue: kv[1], Timestamp: types.DistantPast})
			}

		case types.ChunkKeyValuePairs:
			for _, a := range chunk.Atoms {
				old := b.Get(a.Key)
				var oldCopy []byte
				if old != nil {
					oldCopy = append([]byte(nil), old...)
				}
				if err := b.Put(a.Key, a.Value); err != nil {
					return err
				}
				reports = append(reports, types.ModReport{PrimaryKey: a.Key, OldValue: oldCopy, NewValue: a.Value, Timestamp: a.Recency})
			}

		case types.ChunkSindexes:
			// Catalog sync: reconciling remote sindex definitions into
			// the local catalog belongs to the caller (it requires the
			// query evaluator's mapping-function representation, out
			// of scope per spec §6); nothing to persist here.
			return nil
		}

		if len(reports) == 0 {
			return nil
		}
		ticket := s.Catalog.Ticket.Take()
		return s.applyModReports(tx, ticket, reports)
	})
	if err != nil {
		return fmt.Errorf("store: receive backfill chunk: %w", err)
	}
	metrics.BackfillChunksReceivedTotal.Inc()
	log.Debug("applied backfill chunk")
	return nil
}
