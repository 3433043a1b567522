package drainer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDrainWaitsForSpawnedTasks(t *testing.T) {
	d := New()
	done := make(chan struct{})

	require.NoError(t, d.Spawn(func() {
		time.Sleep(20 * time.Millisecond)
		close(done)
	}))

	d.Drain()

	select {
	case <-done:
	default:
		t.Fatal("Drain returned before spawned task finished")
	}
}

func TestSpawnAfterDrainingIsRejected(t *testing.T) {
	d := New()
	d.Drain()

	err := d.Spawn(func() {})
	require.ErrorIs(t, err, ErrDraining)
}

func TestEmergencyReleaseRequiresDraining(t *testing.T) {
	d := New()
	lock, err := d.TryLock()
	require.NoError(t, err)

	err = d.EmergencyRelease(lock)
	require.Error(t, err)

	lock.Release()
}
