package artificial

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardcore/engine/pkg/types"
)

type memBackend struct {
	mu   sync.Mutex
	rows map[string]types.Row
}

func newMemBackend() *memBackend {
	return &memBackend{rows: make(map[string]types.Row)}
}

func (b *memBackend) ReadRow(_ context.Context, key []byte) (types.Row, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row, ok := b.rows[string(key)]
	return row, ok, nil
}

func (b *memBackend) ReadAll(_ context.Context, start, end []byte, emit func(types.Row) (bool, error)) error {
	b.mu.Lock()
	var keys []string
	for k := range b.rows {
		keys = append(keys, k)
	}
	b.mu.Unlock()
	sort.Strings(keys)

	for _, k := range keys {
		if start != nil && k < string(start) {
			continue
		}
		if end != nil && k >= string(end) {
			continue
		}
		b.mu.Lock()
		row := b.rows[k]
		b.mu.Unlock()
		keepGoing, err := emit(row)
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}

func (b *memBackend) WriteRow(_ context.Context, key []byte, row *types.Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if row == nil {
		delete(b.rows, string(key))
		return nil
	}
	b.rows[string(key)] = *row
	return nil
}

func (b *memBackend) put(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[key] = types.Row{PrimaryKey: []byte(key), Value: []byte(value)}
}

func TestTableReadRow(t *testing.T) {
	backend := newMemBackend()
	backend.put("a", "1")
	tbl := NewTable(backend)

	row, found, err := tbl.ReadRow(context.Background(), []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("1"), row.Value)

	_, found, err = tbl.ReadRow(context.Background(), []byte("missing"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestTableReadAllRange(t *testing.T) {
	backend := newMemBackend()
	backend.put("a", "1")
	backend.put("b", "2")
	backend.put("c", "3")
	tbl := NewTable(backend)

	var seen [][]byte
	err := tbl.ReadAll(context.Background(), []byte("a"), []byte("c"), func(r types.Row) (bool, error) {
		seen = append(seen, r.PrimaryKey)
		return true, nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	require.True(t, bytes.Equal(seen[0], []byte("a")))
	require.True(t, bytes.Equal(seen[1], []byte("b")))
}

func TestWriteBatchedReplaceAppliesTransformConcurrently(t *testing.T) {
	backend := newMemBackend()
	var keys [][]byte
	for i := 0; i < 50; i++ {
		k := []byte{byte(i)}
		backend.put(string(k), "old")
		keys = append(keys, k)
	}
	tbl := NewTable(backend)

	stats := tbl.WriteBatchedReplace(context.Background(), keys, func(_ context.Context, key []byte, current types.Row, found bool) (*types.Row, error) {
		require.True(t, found)
		return &types.Row{PrimaryKey: key, Value: []byte("new")}, nil
	})

	require.Equal(t, 50, stats.Replaced)
	require.Equal(t, 0, stats.Errored)

	row, found, err := backend.ReadRow(context.Background(), keys[0])
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("new"), row.Value)
}

func TestWriteBatchedReplaceNilDeletesExistingRow(t *testing.T) {
	backend := newMemBackend()
	backend.put("a", "1")
	tbl := NewTable(backend)

	stats := tbl.WriteBatchedReplace(context.Background(), [][]byte{[]byte("a")}, func(context.Context, []byte, types.Row, bool) (*types.Row, error) {
		return nil, nil
	})
	require.Equal(t, 1, stats.Deleted)

	_, found, err := backend.ReadRow(context.Background(), []byte("a"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestWriteBatchedReplaceUnchangedWhenValueIdentical(t *testing.T) {
	backend := newMemBackend()
	backend.put("a", "1")
	tbl := NewTable(backend)

	stats := tbl.WriteBatchedReplace(context.Background(), [][]byte{[]byte("a")}, func(_ context.Context, key []byte, current types.Row, _ bool) (*types.Row, error) {
		return &current, nil
	})
	require.Equal(t, 1, stats.Unchanged)
}

func TestWriteBatchedReplaceAccumulatesPerRowErrorsWithoutAbortingSiblings(t *testing.T) {
	backend := newMemBackend()
	backend.put("a", "1")
	backend.put("b", "2")
	tbl := NewTable(backend)

	stats := tbl.WriteBatchedReplace(context.Background(), [][]byte{[]byte("a"), []byte("b")}, func(_ context.Context, key []byte, current types.Row, _ bool) (*types.Row, error) {
		if string(key) == "a" {
			return nil, errors.New("boom")
		}
		return &types.Row{PrimaryKey: key, Value: []byte("updated")}, nil
	})
	require.Equal(t, 1, stats.Errored)
	require.Equal(t, 1, stats.Replaced)
	require.Len(t, stats.Errors, 1)
}

func TestWriteBatchedInsertConflictError(t *testing.T) {
	backend := newMemBackend()
	backend.put("a", "1")
	tbl := NewTable(backend)

	stats := tbl.WriteBatchedInsert(context.Background(), []types.Row{{PrimaryKey: []byte("a"), Value: []byte("2")}}, types.ConflictError)
	require.Equal(t, 1, stats.Errored)
}

func TestWriteBatchedInsertConflictReplace(t *testing.T) {
	backend := newMemBackend()
	backend.put("a", "1")
	tbl := NewTable(backend)

	stats := tbl.WriteBatchedInsert(context.Background(), []types.Row{{PrimaryKey: []byte("a"), Value: []byte("2")}}, types.ConflictReplace)
	require.Equal(t, 1, stats.Replaced)

	row, _, _ := backend.ReadRow(context.Background(), []byte("a"))
	require.Equal(t, []byte("2"), row.Value)
}

func TestWriteBatchedInsertNewKeyInserts(t *testing.T) {
	backend := newMemBackend()
	tbl := NewTable(backend)

	stats := tbl.WriteBatchedInsert(context.Background(), []types.Row{{PrimaryKey: []byte("z"), Value: []byte("new")}}, types.ConflictError)
	require.Equal(t, 1, stats.Inserted)
}

func TestChangefeedAndSyncAreFixedlyUnsupported(t *testing.T) {
	tbl := NewTable(newMemBackend())
	require.Error(t, tbl.Changefeed(context.Background()))
	require.Error(t, tbl.Sync(context.Background()))
	require.Error(t, tbl.CreateSindex(context.Background(), "idx", types.SindexDefinition{}))
	require.Error(t, tbl.DropSindex(context.Background(), "idx"))
	require.Error(t, tbl.GeoQuery(context.Background()))
}
