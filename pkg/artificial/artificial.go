// Package artificial implements the artificial-table adapter: a table
// whose rows come from a pluggable, non-persistent Backend rather than
// the B-tree store. It supports read_row, read_all, and the two
// batched-update operations with bounded-parallelism fan-out; every
// other table operation fails with a fixed, user-visible message.
package artificial

import (
	"context"
	"errors"
	"sync"

	"github.com/shardcore/engine/pkg/engineerr"
	"github.com/shardcore/engine/pkg/metrics"
	"github.com/shardcore/engine/pkg/types"
)

// MaxParallelOps bounds the number of concurrent per-key updates a
// batched replace/insert may run at once.
const MaxParallelOps = 10

// Backend is the pluggable, non-persistent row source behind an
// artificial table. Implementations need not be safe for concurrent
// calls with overlapping keys; the adapter only ever issues up to
// MaxParallelOps concurrent calls and never two for the same key at
// once (each key is owned by exactly one worker for its own update).
type Backend interface {
	// ReadRow returns the current row for key, or found=false if no
	// such row exists.
	ReadRow(ctx context.Context, key []byte) (row types.Row, found bool, err error)

	// ReadAll streams every row whose primary key lies in [start, end)
	// (nil end means unbounded) to emit, in ascending key order. emit
	// returning false stops the scan early.
	ReadAll(ctx context.Context, start, end []byte, emit func(types.Row) (keepGoing bool, err error)) error

	// WriteRow writes row back through the backend. A nil row deletes
	// the key.
	WriteRow(ctx context.Context, key []byte, row *types.Row) error
}

// Table wraps a Backend with the spec's fixed operation surface.
type Table struct {
	backend Backend
}

// NewTable returns a Table backed by b.
func NewTable(b Backend) *Table {
	return &Table{backend: b}
}

// ReadRow implements the single-row read path.
func (t *Table) ReadRow(ctx context.Context, key []byte) (types.Row, bool, error) {
	row, found, err := t.backend.ReadRow(ctx, key)
	if err != nil {
		return types.Row{}, false, engineerr.WrapBackendError("artificial table read_row failed", err)
	}
	return row, found, nil
}

// ReadAll implements the primary-key range read path (spec §4.7: "read_all
// (primary-key ranges only)").
func (t *Table) ReadAll(ctx context.Context, start, end []byte, emit func(types.Row) (bool, error)) error {
	if err := t.backend.ReadAll(ctx, start, end, emit); err != nil {
		return engineerr.WrapBackendError("artificial table read_all failed", err)
	}
	return nil
}

// ReplaceFunc is the caller's per-row transform for write_batched_replace:
// given the current row (found=false if absent), it returns the row's
// new value, or a nil row to delete.
type ReplaceFunc func(ctx context.Context, key []byte, current types.Row, found bool) (*types.Row, error)

// WriteBatchedReplace implements spec §4.7's batched replace: fn is
// applied to every key in keys with bounded parallelism MaxParallelOps,
// and the outcome of every key is folded into the returned stats.
func (t *Table) WriteBatchedReplace(ctx context.Context, keys [][]byte, fn ReplaceFunc) types.BatchStats {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ArtificialBatchDuration, "replace")

	return fanOut(ctx, keys, func(ctx context.Context, key []byte) rowOutcome {
		current, found, err := t.backend.ReadRow(ctx, key)
		if err != nil {
			return rowOutcome{errored: true, err: engineerr.WrapBackendError("artificial table replace read failed", err)}
		}
		if found && string(current.PrimaryKey) != string(key) {
			return rowOutcome{errored: true, err: engineerr.NewUserQueryError("backend returned a row whose primary key does not match the requested key")}
		}

		next, err := fn(ctx, key, current, found)
		if err != nil {
			return rowOutcome{errored: true, err: err}
		}

		return applyWrite(ctx, t.backend, key, found, current, next)
	})
}

// resolveConflict implements write_batched_insert's handling of a key
// that already has a row.
func resolveConflict(policy types.ConflictPolicy, current, incoming types.Row) (*types.Row, error) {
	switch policy {
	case types.ConflictError:
		return nil, engineerr.NewUserQueryError("duplicate primary key")
	case types.ConflictReplace:
		return &incoming, nil
	case types.ConflictUpdate:
		merged := mergeRows(current, incoming)
		return &merged, nil
	default:
		return nil, engineerr.NewUserQueryError("unknown conflict policy")
	}
}

// mergeRows implements the "update" conflict policy: incoming's value
// replaces current's wholesale, since the artificial-table row model has
// no nested-document merge semantics (spec §1 Non-goals: "no schema or
// type enforcement beyond a primary-key field").
func mergeRows(current, incoming types.Row) types.Row {
	return types.Row{PrimaryKey: current.PrimaryKey, Value: incoming.Value}
}

// WriteBatchedInsert implements spec §4.7's batched insert: rows is the
// set of new rows to insert, and policy resolves collisions with an
// existing row at the same key.
func (t *Table) WriteBatchedInsert(ctx context.Context, rows []types.Row, policy types.ConflictPolicy) types.BatchStats {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ArtificialBatchDuration, "insert")

	keys := make([][]byte, len(rows))
	byKey := make(map[string]types.Row, len(rows))
	for i, r := range rows {
		keys[i] = r.PrimaryKey
		byKey[string(r.PrimaryKey)] = r
	}

	return fanOut(ctx, keys, func(ctx context.Context, key []byte) rowOutcome {
		incoming := byKey[string(key)]

		current, found, err := t.backend.ReadRow(ctx, key)
		if err != nil {
			return rowOutcome{errored: true, err: engineerr.WrapBackendError("artificial table insert read failed", err)}
		}

		if !found {
			if err := t.backend.WriteRow(ctx, key, &incoming); err != nil {
				return rowOutcome{errored: true, err: engineerr.WrapBackendError("artificial table insert write failed", err)}
			}
			return rowOutcome{inserted: true}
		}

		next, err := resolveConflict(policy, current, incoming)
		if err != nil {
			return rowOutcome{errored: true, err: err}
		}
		return applyWrite(ctx, t.backend, key, found, current, next)
	})
}

// Fixed, user-visible stubs for the operations spec §4.7/§5 excludes
// unconditionally from artificial tables.
func (t *Table) Changefeed(context.Context) error { return engineerr.ErrNoChangefeeds }
func (t *Table) Sync(context.Context) error       { return engineerr.ErrNoSync }
func (t *Table) CreateSindex(context.Context, string, types.SindexDefinition) error {
	return engineerr.ErrNoSindex
}
func (t *Table) DropSindex(context.Context, string) error { return engineerr.ErrNoSindex }
func (t *Table) GeoQuery(context.Context) error           { return engineerr.ErrNoGeoQuery }

type rowOutcome struct {
	replaced  bool
	inserted  bool
	unchanged bool
	deleted   bool
	skipped   bool
	errored   bool
	err       error
	warning   string
}

func applyWrite(ctx context.Context, backend Backend, key []byte, found bool, current types.Row, next *types.Row) rowOutcome {
	switch {
	case next == nil && !found:
		return rowOutcome{skipped: true}
	case next == nil:
		if err := backend.WriteRow(ctx, key, nil); err != nil {
			return rowOutcome{errored: true, err: engineerr.WrapBackendError("artificial table delete failed", err)}
		}
		return rowOutcome{deleted: true}
	case !found:
		if err := backend.WriteRow(ctx, key, next); err != nil {
			return rowOutcome{errored: true, err: engineerr.WrapBackendError("artificial table insert failed", err)}
		}
		return rowOutcome{inserted: true}
	case string(next.Value) == string(current.Value):
		return rowOutcome{unchanged: true}
	default:
		if err := backend.WriteRow(ctx, key, next); err != nil {
			return rowOutcome{errored: true, err: engineerr.WrapBackendError("artificial table replace failed", err)}
		}
		return rowOutcome{replaced: true}
	}
}

// fanOut runs work for every key with bounded parallelism MaxParallelOps
// (spec §4.7), swallowing per-worker interruption errors and re-checking
// ctx once after every worker has returned so a single Interrupted
// surfaces instead of N (spec §4.7: "worker exceptions from interruption
// are swallowed... a single interrupted signal is surfaced").
func fanOut(ctx context.Context, keys [][]byte, work func(context.Context, []byte) rowOutcome) types.BatchStats {
	sem := make(chan struct{}, MaxParallelOps)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		stats types.BatchStats
	)

	for _, key := range keys {
		key := key
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := work(ctx, key)
			if outcome.errored && ctx.Err() != nil && errors.Is(outcome.err, ctx.Err()) {
				// Interrupted worker: the single Interrupted added after
				// wg.Wait stands for it.
				return
			}

			mu.Lock()
			defer mu.Unlock()
			fold(&stats, outcome)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		stats.Errors = append(stats.Errors, engineerr.Interrupted)
	}
	return stats
}

func fold(stats *types.BatchStats, o rowOutcome) {
	switch {
	case o.errored:
		stats.Errored++
		stats.Errors = append(stats.Errors, o.err)
		metrics.ArtificialRowsTotal.WithLabelValues("errored").Inc()
	case o.replaced:
		stats.Replaced++
		metrics.ArtificialRowsTotal.WithLabelValues("replaced").Inc()
	case o.inserted:
		stats.Inserted++
		metrics.ArtificialRowsTotal.WithLabelValues("inserted").Inc()
	case o.unchanged:
		stats.Unchanged++
		metrics.ArtificialRowsTotal.WithLabelValues("unchanged").Inc()
	case o.deleted:
		stats.Deleted++
		metrics.ArtificialRowsTotal.WithLabelValues("deleted").Inc()
	case o.skipped:
		stats.Skipped++
		metrics.ArtificialRowsTotal.WithLabelValues("skipped").Inc()
	}
	if o.warning != "" {
		stats.Warnings = append(stats.Warnings, o.warning)
	}
}
