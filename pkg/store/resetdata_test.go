package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shardcore/engine/pkg/region"
	"github.com/shardcore/engine/pkg/types"
)

func TestResetDataErasesRangeInBoundedPasses(t *testing.T) {
	s := newTestStore(t)

	var ops []WriteOp
	for i := 0; i < MaxErasedPerPass*2+10; i++ {
		ops = append(ops, WriteOp{Key: []byte(fmt.Sprintf("k%05d", i)), Value: []byte("v"), Recency: 1})
	}
	_, err := s.Write(ops, types.DurabilitySoft, nil)
	require.NoError(t, err)

	require.NoError(t, s.ResetData(region.Universe()))

	for i := 0; i < len(ops); i++ {
		_, found, err := s.Read([]byte(fmt.Sprintf("k%05d", i)), nil)
		require.NoError(t, err)
		require.False(t, found)
	}
}

func TestResetDataDropsSindexesWhenShardGoesEmpty(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.Catalog.Add("by_email", types.SindexDefinition{})
	require.NoError(t, err)
	require.True(t, ok)

	// Metainfo starts at DistantPast everywhere (isGoingFullyEmpty==true).
	require.NoError(t, s.ResetData(region.Universe()))

	require.Eventually(t, func() bool {
		return len(s.Catalog.List()) == 0
	}, time.Second, 5*time.Millisecond)
}
