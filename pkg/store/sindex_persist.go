package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/shardcore/engine/pkg/sindex"
	"github.com/shardcore/engine/pkg/types"
)

// sindexPersister implements sindex.Persister over the store's own
// bbolt buckets: bucketSindexCatalog holds one JSON record per name
// (live or tombstone), bucketSindexData holds one nested bucket per
// index UUID keyed by its hex string.
type sindexPersister struct {
	s *Store
}

type catalogRecord struct {
	Name types.SindexName
	Idx  types.SecondaryIndex
	Def  types.SindexDefinition
}

func dataBucketKey(id uuid.UUID) []byte {
	return []byte(id.String())
}

func (p *sindexPersister) SaveRecord(name types.SindexName, rec types.SecondaryIndex, def types.SindexDefinition) error {
	return p.s.db.Update(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketSindexCatalog)
		cr := catalogRecord{Name: name, Idx: rec, Def: def}
		data, err := json.Marshal(cr)
		if err != nil {
			return fmt.Errorf("marshal sindex record: %w", err)
		}
		if err := cb.Put([]byte(name.Name), data); err != nil {
			return err
		}

		db := tx.Bucket(bucketSindexData)
		_, err = db.CreateBucketIfNotExists(dataBucketKey(rec.ID))
		return err
	})
}

func (p *sindexPersister) DeleteRecord(name types.SindexName) error {
	return p.s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSindexCatalog).Delete([]byte(name.Name))
	})
}

// ClearChunk deletes up to sindex.ChunkSize keys from id's data bucket
// and reports how many keys remain, implementing spec §4.4 Drop phase
// 2's "walk the sindex's tree in batches of CHUNK_SIZE keys". Keys are
// collected from a cursor pass first since bbolt does not allow
// deleting while a cursor that hasn't visited them yet is still live.
func (p *sindexPersister) ClearChunk(id uuid.UUID) (int, error) {
	remaining := 0
	err := p.s.db.Update(func(tx *bolt.Tx) error {
		db := tx.Bucket(bucketSindexData)
		b := db.Bucket(dataBucketKey(id))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil && len(toDelete) < sindex.ChunkSize; k, _ = c.Next() {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		remaining = b.Stats().KeyN
		return nil
	})
	return remaining, err
}

func (p *sindexPersister) DeleteIndexStorage(id uuid.UUID) error {
	return p.s.db.Update(func(tx *bolt.Tx) error {
		db := tx.Bucket(bucketSindexData)
		if db.Bucket(dataBucketKey(id)) == nil {
			return nil
		}
		return db.DeleteBucket(dataBucketKey(id))
	})
}

// loadCatalog rebuilds the in-memory sindex catalog from the persisted
// sindex-block, per spec §3: "the in-memory slice map is rebuilt from
// the sindex-block". Every tombstoned record has its background clear
// re-spawned, whether or not its data bucket still has entries.
func (s *Store) loadCatalog() error {
	var records []catalogRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		cb := tx.Bucket(bucketSindexCatalog)
		return cb.ForEach(func(k, v []byte) error {
			var cr catalogRecord
			if err := json.Unmarshal(v, &cr); err != nil {
				return fmt.Errorf("unmarshal sindex record %s: %w", k, err)
			}
			records = append(records, cr)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("store: load sindex catalog: %w", err)
	}

	for _, cr := range records {
		s.Catalog.Restore(cr.Name, cr.Idx, cr.Def)
		if cr.Idx.BeingDeleted {
			if err := s.Catalog.ResumeClear(cr.Idx.ID, cr.Name); err != nil {
				return fmt.Errorf("store: resume clear for %s: %w", cr.Name.Name, err)
			}
		}
	}
	return nil
}
