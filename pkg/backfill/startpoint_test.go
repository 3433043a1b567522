package backfill

import (
	"testing"

	"github.com/shardcore/engine/pkg/region"
	"github.com/shardcore/engine/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestValidateCoverageFullUniverse(t *testing.T) {
	err := ValidateCoverage([]StartPoint{{Region: region.Universe(), Timestamp: types.DistantPast}})
	require.NoError(t, err)
}

func TestValidateCoverageSplitUniverse(t *testing.T) {
	points := []StartPoint{
		{Region: region.Region{Start: nil, End: []byte("m")}, Timestamp: 10},
		{Region: region.Region{Start: []byte("m"), End: nil}, Timestamp: 20},
	}
	require.NoError(t, ValidateCoverage(points))
}

func TestValidateCoverageDetectsGap(t *testing.T) {
	points := []StartPoint{
		{Region: region.Region{Start: nil, End: []byte("m")}, Timestamp: 10},
	}
	require.Error(t, ValidateCoverage(points))
}

func TestValidateCoverageDetectsOverlap(t *testing.T) {
	points := []StartPoint{
		{Region: region.Region{Start: nil, End: []byte("n")}, Timestamp: 10},
		{Region: region.Region{Start: []byte("m"), End: nil}, Timestamp: 20},
	}
	require.Error(t, ValidateCoverage(points))
}

func TestTimestampForFallsBackToDistantPast(t *testing.T) {
	require.Equal(t, types.DistantPast, TimestampFor(nil, []byte("k")))

	points := []StartPoint{{Region: region.Universe(), Timestamp: 42}}
	require.EqualValues(t, 42, TimestampFor(points, []byte("k")))
}
