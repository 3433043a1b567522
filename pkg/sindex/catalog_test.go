package sindex

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shardcore/engine/pkg/drainer"
	"github.com/shardcore/engine/pkg/engineerr"
	"github.com/shardcore/engine/pkg/types"
)

// fakePersister is an in-memory stand-in for pkg/store's bbolt-backed
// Persister, sufficient to exercise the catalog's lifecycle logic
// without a real store.
type fakePersister struct {
	mu      sync.Mutex
	records map[string]types.SecondaryIndex
	defs    map[string]types.SindexDefinition
	data    map[uuid.UUID]int // remaining fake keys per index
}

func newFakePersister() *fakePersister {
	return &fakePersister{
		records: make(map[string]types.SecondaryIndex),
		defs:    make(map[string]types.SindexDefinition),
		data:    make(map[uuid.UUID]int),
	}
}

func (f *fakePersister) SaveRecord(name types.SindexName, rec types.SecondaryIndex, def types.SindexDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[name.Name] = rec
	f.defs[name.Name] = def
	if _, ok := f.data[rec.ID]; !ok {
		f.data[rec.ID] = 100
	}
	return nil
}

func (f *fakePersister) DeleteRecord(name types.SindexName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, name.Name)
	return nil
}

func (f *fakePersister) ClearChunk(id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining := f.data[id]
	if remaining <= ChunkSize {
		f.data[id] = 0
		return 0, nil
	}
	f.data[id] = remaining - ChunkSize
	return f.data[id], nil
}

func (f *fakePersister) DeleteIndexStorage(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, id)
	return nil
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	queues, err := NewQueueRegistry(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { queues.Close() })
	return NewCatalog(newFakePersister(), queues, drainer.New(), nil)
}

func TestCatalogAddRejectsDuplicateName(t *testing.T) {
	c := newTestCatalog(t)
	ok, err := c.Add("by_email", types.SindexDefinition{Mapping: []byte("m1")})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.Add("by_email", types.SindexDefinition{Mapping: []byte("m2")})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCatalogAcquireForReadNotReadyThenReady(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Add("by_email", types.SindexDefinition{Mapping: []byte("m")})
	require.NoError(t, err)

	_, err = c.AcquireForRead("by_email")
	require.Error(t, err)

	found, err := c.MarkUpToDateByName("by_email")
	require.NoError(t, err)
	require.True(t, found)

	idx, err := c.AcquireForRead("by_email")
	require.NoError(t, err)
	require.True(t, idx.IsReady())
}

func TestCatalogAcquireForReadUnknownName(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.AcquireForRead("nope")
	require.ErrorIs(t, err, engineerr.NotFound)
}

func TestCatalogRename(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Add("old_name", types.SindexDefinition{Mapping: []byte("m")})
	require.NoError(t, err)
	_, err = c.MarkUpToDateByName("old_name")
	require.NoError(t, err)

	require.NoError(t, c.Rename("old_name", "new_name"))

	_, err = c.AcquireForRead("old_name")
	require.Error(t, err)
	idx, err := c.AcquireForRead("new_name")
	require.NoError(t, err)
	require.True(t, idx.IsReady())
}

func TestCatalogRenameRejectsTakenName(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Add("a", types.SindexDefinition{})
	require.NoError(t, err)
	_, err = c.Add("b", types.SindexDefinition{})
	require.NoError(t, err)

	require.Error(t, c.Rename("a", "b"))
}

func TestCatalogDropMarksDeletedThenBackgroundClears(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Add("by_email", types.SindexDefinition{})
	require.NoError(t, err)

	require.NoError(t, c.Drop("by_email"))

	// Invisible to queries immediately after mark-deleted.
	_, err = c.AcquireForRead("by_email")
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return len(c.List()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCatalogSetSindexesReconciles(t *testing.T) {
	c := newTestCatalog(t)
	created, err := c.SetSindexes(map[string]types.SindexDefinition{
		"a": {Mapping: []byte("m1")},
		"b": {Mapping: []byte("m2")},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, created)

	created, err = c.SetSindexes(map[string]types.SindexDefinition{
		"a": {Mapping: []byte("m1")}, // unchanged
		"c": {Mapping: []byte("m3")}, // new
		// "b" dropped
	})
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, created)

	require.Eventually(t, func() bool {
		names := map[string]bool{}
		for _, s := range c.List() {
			names[s.Name] = true
		}
		return names["a"] && names["c"] && !names["b"]
	}, time.Second, 5*time.Millisecond)
}

func TestCatalogApplyModReportsPreservesTicketOrder(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Queues.Register("catchup"))

	var mu sync.Mutex
	var applied []int
	apply := func(id uuid.UUID, r types.ModReport) error {
		mu.Lock()
		applied = append(applied, int(r.PrimaryKey[0]))
		mu.Unlock()
		return nil
	}

	const n = 5
	tickets := make([]uint64, n)
	for i := 0; i < n; i++ {
		tickets[i] = c.Ticket.Take()
	}

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			report := []types.ModReport{{PrimaryKey: []byte{byte(i)}, NewValue: []byte("v")}}
			require.NoError(t, c.ApplyModReports(tickets[i], report, apply))
		}()
	}
	wg.Wait()

	reports, _, err := c.Queues.Drain("catchup", 0)
	require.NoError(t, err)
	require.Len(t, reports, n)
	for i, r := range reports {
		require.Equal(t, byte(i), r.PrimaryKey[0])
	}
}
