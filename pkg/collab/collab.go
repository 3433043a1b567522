// Package collab declares the external collaborators the storage engine
// consumes but never implements: the query-language evaluator,
// change-feed servers, the cluster/replication manager, the on-disk
// block serializer, the cache balancer, and the B-tree primitives
// underneath pkg/store's bucket-per-concern layout.
//
// Every type here is an interface (or a thin struct wrapping one),
// mirroring the way the corpus keeps its gRPC-facing boundaries —
// pkg/client and pkg/worker hold a *grpc.ClientConn plus a generated
// client interface rather than reimplementing the server side locally.
// None of the interfaces has a concrete implementation here. pkg/store
// receives a QueryEvaluator and a ClusterManager as constructor
// arguments: it calls the evaluator's ApplyMapping and only stores the
// cluster manager.
package collab

import (
	"context"

	"google.golang.org/grpc"

	"github.com/shardcore/engine/pkg/region"
	"github.com/shardcore/engine/pkg/types"
)

// BtreePrimitives is the B-tree implementation the store dispatches
// reads and writes against. The node format (leaf/internal split,
// underflow rebalancing) is assumed given; the store constrains only how
// these primitives are sequenced, never their internals.
type BtreePrimitives interface {
	GetSuperblockForReading(ctx context.Context) (Superblock, error)
	GetSuperblockForWriting(ctx context.Context) (Superblock, error)
	GetSuperblockForBackfilling(ctx context.Context) (Superblock, error)
	InitSuperblock(ctx context.Context) (Superblock, error)
	FindKeyValueLocationForWrite(ctx context.Context, sb Superblock, key []byte) (Location, error)
	RemoveFromLeaf(ctx context.Context, loc Location) error
	RebalanceUnderfull(ctx context.Context, loc Location) error

	// Traverse walks the tree depth-first, invoking visit for every
	// key/value pair; visit returns false to stop the traversal early.
	Traverse(ctx context.Context, sb Superblock, visit func(key, value []byte) (keepGoing bool, err error)) error
}

// Superblock is an opaque handle to a tree's persistent root, returned
// by BtreePrimitives and consumed by DeletionContext.
type Superblock interface {
	BlockID() uint64
}

// Location is an opaque handle to a found (or to-be-inserted) key's
// position within a B-tree, as returned by FindKeyValueLocationForWrite.
type Location interface {
	Key() []byte
}

// DeletionContext detaches blob values from their containing node on
// removal and supplies the balancing-detacher used during underflow
// rebalance.
type DeletionContext interface {
	Detach(ctx context.Context, loc Location) error
	BalancingDetacher() BalancingDetacher
}

// BalancingDetacher is consulted by RebalanceUnderfull when a node must
// give up a value to a sibling during rebalance.
type BalancingDetacher interface {
	DetachForRebalance(ctx context.Context, loc Location) error
}

// Serializer allocates and reads/writes blocks on the underlying
// block device, with separate durable and soft write paths and a
// snapshot view for isolated reads.
type Serializer interface {
	AllocateBlock(ctx context.Context) (uint64, error)
	ReadBlock(ctx context.Context, id uint64) ([]byte, error)
	WriteBlock(ctx context.Context, id uint64, data []byte, durability types.Durability) error
	SnapshotView(ctx context.Context) (SnapshotView, error)
}

// SnapshotView is a point-in-time, read-only view of the serializer's
// blocks, held for the duration of a snapshotted read or a backfill
// send pass.
type SnapshotView interface {
	ReadBlock(ctx context.Context, id uint64) ([]byte, error)
	Release()
}

// CacheBalancer reserves dirty-page budget for writers and advises the
// serializer on eviction pressure; it does not itself own block memory.
type CacheBalancer interface {
	ReserveDirtyBudget(ctx context.Context, expectedChangeCount int) (release func(), err error)
}

// QueryEvaluator is the query-language runtime backing sindex mapping
// functions and artificial-table row transforms: it owns the datum
// model, applies a serialized mapping definition to a row, and merges
// per-worker stats accumulators.
type QueryEvaluator interface {
	ApplyMapping(ctx context.Context, def types.SindexDefinition, row types.Row) (Datum, error)
	MergeStats(ctx context.Context, into *types.BatchStats, from types.BatchStats)
	ResolveConflict(ctx context.Context, policy types.ConflictPolicy, current, incoming types.Row) (*types.Row, error)
}

// Datum is the query language's tagged-union value type (the result of
// applying a sindex mapping function to a row).
type Datum interface {
	IsNull() bool
	Bytes() ([]byte, error)
}

// ChangeFeedStream is the server-push side of a change-feed
// subscription; out of scope for this engine (spec Non-goals: no
// change-feed support), declared only so a future caller has a type to
// wire a real implementation against.
type ChangeFeedStream interface {
	Send(ctx context.Context, report types.ModReport) error
	Close() error
}

// ChangeFeedServer constructs per-table ChangeFeedStreams; the cluster
// manager is its only dependency.
type ChangeFeedServer interface {
	Subscribe(ctx context.Context, region region.Region) (ChangeFeedStream, error)
}

// ClusterManager is the cluster/replication manager collaborator. It is
// nullable: a store that never needs to construct a change-feed server
// may be given a ClusterManager with a nil conn, mirroring pkg/worker's
// and pkg/client's optional *grpc.ClientConn.
type ClusterManager struct {
	conn *grpc.ClientConn
}

// NewClusterManager wraps an already-dialed gRPC connection to the
// cluster manager. Passing a nil conn is valid and yields a
// ClusterManager that cannot construct change-feed servers.
func NewClusterManager(conn *grpc.ClientConn) *ClusterManager {
	return &ClusterManager{conn: conn}
}

// Connected reports whether this manager holds a live connection.
func (m *ClusterManager) Connected() bool {
	return m != nil && m.conn != nil
}

// Conn returns the underlying connection, or nil if unconnected.
func (m *ClusterManager) Conn() *grpc.ClientConn {
	if m == nil {
		return nil
	}
	return m.conn
}
