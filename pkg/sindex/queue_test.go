package sindex

import (
	"testing"

	"github.com/shardcore/engine/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestQueueRegistryPushAndDrain(t *testing.T) {
	reg, err := NewQueueRegistry(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, reg.Register("consumer-a"))

	for i := 0; i < 3; i++ {
		require.NoError(t, reg.Push(types.ModReport{
			PrimaryKey: []byte{byte(i)},
			NewValue:   []byte("v"),
			Timestamp:  types.Timestamp(i),
		}))
	}

	reports, next, err := reg.Drain("consumer-a", 0)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	require.EqualValues(t, 4, next)
	for i, r := range reports {
		require.Equal(t, []byte{byte(i)}, r.PrimaryKey)
	}
}

func TestQueueRegistryDrainUnregisteredConsumer(t *testing.T) {
	reg, err := NewQueueRegistry(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	_, _, err = reg.Drain("nope", 0)
	require.Error(t, err)
}

func TestQueueRegistryDeregisterRemovesFile(t *testing.T) {
	reg, err := NewQueueRegistry(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, reg.Register("consumer-a"))
	require.NoError(t, reg.Push(types.ModReport{PrimaryKey: []byte("k")}))
	require.NoError(t, reg.Deregister("consumer-a"))

	_, _, err = reg.Drain("consumer-a", 0)
	require.Error(t, err)
}
