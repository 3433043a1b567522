package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardcore/engine/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Options{DataDir: t.TempDir(), Create: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreWriteThenRead(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Write([]WriteOp{
		{Key: []byte("k1"), Value: []byte("v1"), Recency: 1},
	}, types.DurabilityHard, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Inserted)

	v, found, err := s.Read([]byte("k1"), nil)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), v)

	_, found, err = s.Read([]byte("missing"), nil)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreWriteReplaceVsInsert(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Write([]WriteOp{{Key: []byte("k"), Value: []byte("v1"), Recency: 1}}, types.DurabilitySoft, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Inserted)

	stats, err = s.Write([]WriteOp{{Key: []byte("k"), Value: []byte("v2"), Recency: 2}}, types.DurabilitySoft, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Replaced)
}

func TestStoreWriteDeleteSkipsMissingKey(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Write([]WriteOp{{Key: []byte("nope"), Delete: true}}, types.DurabilitySoft, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Skipped)
}

func TestStoreReopenRebuildsCatalog(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(Options{DataDir: dir, Create: true})
	require.NoError(t, err)

	ok, err := s.Catalog.Add("by_email", types.SindexDefinition{Mapping: []byte("m")})
	require.NoError(t, err)
	require.True(t, ok)
	_, err = s.Catalog.MarkUpToDateByName("by_email")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := NewStore(Options{DataDir: dir, Create: false})
	require.NoError(t, err)
	defer s2.Close()

	status, err := s2.Catalog.Status("by_email")
	require.NoError(t, err)
	require.True(t, status.Ready)
}

func TestStoreProfileRecordsWaits(t *testing.T) {
	s := newTestStore(t)
	p := &types.Profile{}

	_, _, err := s.Read([]byte("k"), p)
	require.NoError(t, err)
	require.Positive(t, p.TokenWait+p.SuperblockWait+p.Dispatch)
}
