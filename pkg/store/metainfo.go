package store

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/shardcore/engine/pkg/region"
	"github.com/shardcore/engine/pkg/types"
)

// metainfoEntry is the on-disk shape of one metainfo kv-pair: a region
// bound plus its opaque replication-state blob.
type metainfoEntry struct {
	Start []byte
	End   []byte
	Blob  types.Timestamp
}

// getMetainfoTx is get_metainfo_internal (spec §4.2) scoped to an
// already-open transaction, for callers (reset_data) that must read and
// rewrite metainfo within the same write transaction as their primary
// data edits.
func getMetainfoTx(tx *bolt.Tx) (*region.Map[types.Timestamp], error) {
	m := region.NewMap(types.DistantPast)
	b := tx.Bucket(bucketMetainfo)
	err := b.ForEach(func(_, v []byte) error {
		var e metainfoEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("unmarshal metainfo entry: %w", err)
		}
		m.Set(region.Region{Start: e.Start, End: e.End}, e.Blob)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get metainfo: %w", err)
	}
	return m, nil
}

// putMetainfoTx is update_metainfo (spec §4.2) scoped to an already-open
// transaction: it clears the metainfo bucket fully and rewrites every
// partition of m, since the underlying kv-set is non-subtractive and
// in-place edits would be inefficient to keep consistent with an
// arbitrary region repartition.
func putMetainfoTx(tx *bolt.Tx, m *region.Map[types.Timestamp]) error {
	b := tx.Bucket(bucketMetainfo)
	if err := clearBucket(b); err != nil {
		return fmt.Errorf("clear metainfo bucket: %w", err)
	}
	for i, e := range m.Entries() {
		data, err := json.Marshal(metainfoEntry{Start: e.Region.Start, End: e.Region.End, Blob: e.Value})
		if err != nil {
			return fmt.Errorf("marshal metainfo entry: %w", err)
		}
		key := fmt.Appendf(nil, "%08d", i)
		if err := b.Put(key, data); err != nil {
			return err
		}
	}
	return nil
}

// GetMetainfo implements spec §4.2's get_metainfo_internal: deserializes
// the superblock's metainfo kv-pairs into a region_map. The persisted
// representation is itself a kv-set (one bucket entry per region),
// matching the spec's description of the underlying storage as
// non-subtractive.
func (s *Store) GetMetainfo() (*region.Map[types.Timestamp], error) {
	var m *region.Map[types.Timestamp]
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		m, err = getMetainfoTx(tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: get metainfo: %w", err)
	}
	return m, nil
}

// UpdateMetainfo implements spec §4.2's update_metainfo(old, new, sb).
// This engine omits the debug-mode checker the spec mentions against a
// caller-supplied subregion; it always fully replaces
// the persisted map with newMap.
func (s *Store) UpdateMetainfo(newMap *region.Map[types.Timestamp]) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putMetainfoTx(tx, newMap)
	})
}

// SetMetainfoRegion is the write-path wrapper of spec §4.2's
// set_metainfo: it sets a single region's blob without requiring the
// caller to materialize the whole map first.
func (s *Store) SetMetainfoRegion(r region.Region, blob types.Timestamp) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		m, err := getMetainfoTx(tx)
		if err != nil {
			return err
		}
		m.Set(r, blob)
		return putMetainfoTx(tx, m)
	})
}

// clearBucket deletes every key currently in b.
func clearBucket(b *bolt.Bucket) error {
	c := b.Cursor()
	var keys [][]byte
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
