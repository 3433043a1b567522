package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardcore/engine/pkg/backfill"
	"github.com/shardcore/engine/pkg/region"
	"github.com/shardcore/engine/pkg/types"
)

func TestSendReceiveBackfillRoundTrip(t *testing.T) {
	src := newTestStore(t)
	dst := newTestStore(t)

	_, err := src.Write([]WriteOp{
		{Key: []byte("a"), Value: []byte("1"), Recency: 1},
		{Key: []byte("b"), Value: []byte("2"), Recency: 2},
	}, types.DurabilityHard, nil)
	require.NoError(t, err)

	points := []backfill.StartPoint{{Region: region.Universe(), Timestamp: types.DistantPast}}
	err = src.SendBackfill(points, func(chunk types.BackfillChunk) (bool, error) {
		return true, dst.ReceiveBackfill(chunk)
	})
	require.NoError(t, err)

	v, found, err := dst.Read([]byte("a"), nil)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("1"), v)

	v, found, err = dst.Read([]byte("b"), nil)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("2"), v)
}

func TestSendBackfillCallbackCanStopEarly(t *testing.T) {
	src := newTestStore(t)
	_, err := src.Write([]WriteOp{
		{Key: []byte("a"), Value: []byte("1"), Recency: 1},
	}, types.DurabilityHard, nil)
	require.NoError(t, err)

	calls := 0
	err = src.SendBackfill([]backfill.StartPoint{{Region: region.Universe()}}, func(types.BackfillChunk) (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestReceiveBackfillDeleteKey(t *testing.T) {
	dst := newTestStore(t)
	_, err := dst.Write([]WriteOp{{Key: []byte("a"), Value: []byte("1"), Recency: 1}}, types.DurabilityHard, nil)
	require.NoError(t, err)

	err = dst.ReceiveBackfill(types.BackfillChunk{Kind: types.ChunkDeleteKey, DeleteKey: []byte("a"), DeleteRecency: 2})
	require.NoError(t, err)

	_, found, err := dst.Read([]byte("a"), nil)
	require.NoError(t, err)
	require.False(t, found)
}
