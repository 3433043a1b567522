package sindex

import (
	"testing"

	"github.com/shardcore/engine/pkg/region"
	"github.com/stretchr/testify/require"
)

func TestProgressTrackerCoversGrowsMonotonically(t *testing.T) {
	p := NewProgressTracker()
	full := region.Region{Start: []byte("a"), End: []byte("z")}
	require.False(t, p.Covers("idx1", full))

	p.Advance("idx1", region.Region{Start: []byte("a"), End: []byte("m")})
	require.False(t, p.Covers("idx1", full))

	p.Advance("idx1", region.Region{Start: []byte("m"), End: []byte("z")})
	require.True(t, p.Covers("idx1", full))
}

func TestProgressTrackerMarkComplete(t *testing.T) {
	p := NewProgressTracker()
	p.MarkComplete("idx1")
	require.True(t, p.Covers("idx1", region.Universe()))
}

func TestProgressTrackerReset(t *testing.T) {
	p := NewProgressTracker()
	p.MarkComplete("idx1")
	p.Reset("idx1")
	require.False(t, p.Covers("idx1", region.Universe()))
}
