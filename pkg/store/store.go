// Package store implements the per-shard transactional store of spec
// §3/§4.1: a bbolt-backed superblock, metainfo region-map, sindex-block
// catalog, and the primary-data read/write/reset-data/backfill
// operations that mediate concurrent access to one table shard.
//
// bbolt stands in for the spec's custom buffer-cache-over-B-tree
// directly: a bucket is a B-tree slice, db.View/db.Update realize the
// read/write transaction-acquisition paths, and bbolt's own MVCC
// read-snapshot is the superblock "use_snapshot" path (see DESIGN.md
// for why no separate cache-balancer/serializer layer is modeled).
package store

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/shardcore/engine/pkg/backfill"
	"github.com/shardcore/engine/pkg/collab"
	"github.com/shardcore/engine/pkg/drainer"
	"github.com/shardcore/engine/pkg/log"
	"github.com/shardcore/engine/pkg/metrics"
	"github.com/shardcore/engine/pkg/sindex"
	"github.com/shardcore/engine/pkg/token"
)

var (
	bucketPrimary       = []byte("primary")
	bucketMetainfo      = []byte("metainfo")
	bucketSindexCatalog = []byte("sindex_catalog")
	bucketSindexData    = []byte("sindex_data")
	bucketStat          = []byte("stat")
)

// MaxErasedPerPass bounds how many keys a single reset_data pass erases
// (spec §4.3).
const MaxErasedPerPass = 100

// Store is one table shard: a bbolt database holding the primary data,
// sindex catalog and data, and metainfo, plus the in-memory concurrency
// machinery (token source, sindex pipeline, backfill/postcon lock,
// drainer) layered over it.
type Store struct {
	db      *bolt.DB
	dataDir string

	Tokens  *token.Source
	Catalog *sindex.Catalog
	Postcon *backfill.PostconLock
	Drain   *drainer.Drainer

	queues    *sindex.QueueRegistry
	queryEval collab.QueryEvaluator
	cluster   *collab.ClusterManager
}

// Options configures NewStore.
type Options struct {
	// DataDir holds the store's bbolt file and sindex queue files.
	DataDir string
	// Create, when true, lays down a fresh superblock if none exists.
	// When false and no superblock exists, NewStore fails.
	Create bool
	// Notify is the external index-report collaborator notified on
	// sindex rename (spec §4.4); may be nil.
	Notify sindex.RenameNotifier
	// QueryEvaluator applies a sindex's mapping definition to a row to
	// derive its indexed key (spec §4.4/§6); nil falls back to using the
	// row's own primary key as its indexed value (see DESIGN.md).
	QueryEvaluator collab.QueryEvaluator
	// Cluster is the cluster/replication manager collaborator a
	// change-feed server would be built against; stored and forwarded
	// but never dialed or used internally, since change-feeds and
	// cross-shard coordination are out of scope (spec Non-goals).
	Cluster *collab.ClusterManager
}

// NewStore opens (or creates) the store rooted at opts.DataDir.
func NewStore(opts Options) (*Store, error) {
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(opts.DataDir, "shard.db")
	_, statErr := os.Stat(dbPath)
	exists := statErr == nil
	if !exists && !opts.Create {
		return nil, fmt.Errorf("store: %s does not exist and Create is false", dbPath)
	}

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPrimary, bucketMetainfo, bucketSindexCatalog, bucketSindexData, bucketStat} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	queueDir := filepath.Join(opts.DataDir, "sindex-queues")
	queues, err := sindex.NewQueueRegistry(queueDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:        db,
		dataDir:   opts.DataDir,
		Tokens:    token.NewSource(),
		Postcon:   backfill.NewPostconLock(),
		Drain:     drainer.New(),
		queues:    queues,
		queryEval: opts.QueryEvaluator,
		cluster:   opts.Cluster,
	}
	s.Catalog = sindex.NewCatalog(&sindexPersister{s: s}, queues, s.Drain, opts.Notify)

	if err := s.loadCatalog(); err != nil {
		db.Close()
		return nil, err
	}

	metrics.StoresOpenTotal.Inc()
	log.Info("store opened at " + opts.DataDir)
	return s, nil
}

// Cluster returns the cluster/replication manager this store was
// constructed with, or nil if none was given.
func (s *Store) Cluster() *collab.ClusterManager {
	return s.cluster
}

// Close drains all in-flight background work (sindex clear, etc.) and
// closes the underlying database and queue files. Spec §3: "Destroyed
// only after the drainer has drained all background tasks."
func (s *Store) Close() error {
	s.Drain.Drain()
	if err := s.queues.Close(); err != nil {
		log.Error("store: error closing sindex queues: " + err.Error())
	}
	return s.db.Close()
}
