package store

import (
	bolt "go.etcd.io/bbolt"

	"github.com/shardcore/engine/pkg/log"
	"github.com/shardcore/engine/pkg/metrics"
	"github.com/shardcore/engine/pkg/region"
	"github.com/shardcore/engine/pkg/types"
)

// ResetData implements spec §4.3: erases every key in r, in passes of
// at most MaxErasedPerPass keys, updating metainfo and feeding the
// sindex pipeline after each pass. Before the first pass, if zeroing r
// would leave the store's metainfo with no non-zero region (the shard is
// losing all its data), every live sindex is dropped up front to reclaim
// space immediately.
//
// ResetData takes no interruptor: once called, it runs every pass to
// completion, and there is no interruption point either within a pass
// or between passes.
func (s *Store) ResetData(r region.Region) error {
	if empty, err := s.isGoingFullyEmpty(r); err != nil {
		return err
	} else if empty {
		for _, status := range s.Catalog.List() {
			if !status.BeingDeleted {
				if err := s.Catalog.Drop(status.Name); err != nil {
					return err
				}
			}
		}
	}

	for {
		reached, done, err := s.resetDataPass(r)
		if err != nil {
			return err
		}
		metrics.ResetDataPassesTotal.Inc()
		if done {
			break
		}
		r = region.Region{Start: reached, End: r.End}
	}
	return nil
}

// isGoingFullyEmpty reports whether every region in the store's
// metainfo carries the zero timestamp once r is set to it, meaning the
// whole shard is being reset to empty.
func (s *Store) isGoingFullyEmpty(r region.Region) (bool, error) {
	m, err := s.GetMetainfo()
	if err != nil {
		return false, err
	}
	m.Set(r, types.DistantPast)
	for _, e := range m.Entries() {
		if e.Value != types.DistantPast {
			return false, nil
		}
	}
	return true, nil
}

// resetDataPass runs one bounded erase pass over r, returning the key
// it reached (a prefix boundary of r) and whether the full region was
// consumed.
func (s *Store) resetDataPass(r region.Region) (reached []byte, done bool, err error) {
	var reports []types.ModReport

	txErr := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPrimary)
		c := b.Cursor()

		var k, v []byte
		if r.Start != nil {
			k, v = c.Seek(r.Start)
		} else {
			k, v = c.First()
		}

		var toDelete [][2][]byte
		for ; k != nil && len(toDelete) < MaxErasedPerPass; k, v = c.Next() {
			if r.End != nil && string(k) >= string(r.End) {
				break
			}
			toDelete = append(toDelete, [2][]byte{append([]byte(nil), k...), append([]byte(nil), v...)})
		}

		done = k == nil || (r.End != nil && string(k) >= string(r.End))
		if len(toDelete) > 0 {
			reached = toDelete[len(toDelete)-1][0]
			// reached is the last key erased; the next pass must start
			// just past it.
			reached = append(append([]byte{}, reached...), 0x00)
		} else {
			reached = r.End
		}

		for _, kv := range toDelete {
			if err := b.Delete(kv[0]); err != nil {
				return err
			}
			reports = append(reports, types.ModReport{PrimaryKey: kv[0], OldValue: kv[1], NewValue: nil, Timestamp: types.DistantPast})
		}

		erasedRegion := region.Region{Start: r.Start, End: reached}
		if done {
			erasedRegion.End = r.End
		}
		m, err := getMetainfoTx(tx)
		if err != nil {
			return err
		}
		m.Set(erasedRegion, types.DistantPast)
		return putMetainfoTx(tx, m)
	})
	if txErr != nil {
		return nil, false, txErr
	}

	if len(reports) > 0 {
		ticket := s.Catalog.Ticket.Take()
		err = s.db.Update(func(tx *bolt.Tx) error {
			return s.applyModReports(tx, ticket, reports)
		})
		if err != nil {
			return nil, false, err
		}
	}
	log.Info("reset_data pass erased keys and updated metainfo")
	return reached, done, nil
}
