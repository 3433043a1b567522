package backfill

import (
	"fmt"

	"github.com/shardcore/engine/pkg/region"
	"github.com/shardcore/engine/pkg/types"
)

// StartPoint is the per-region recency state a backfill consumer
// reports when it asks a producer to (re)send everything it might have
// missed: "send me anything newer than Timestamp for keys in Region".
// A full backfill is expressed as one StartPoint covering the universe
// at types.DistantPast.
type StartPoint struct {
	Region    region.Region
	Timestamp types.Timestamp
}

// ValidateCoverage checks that points subdivide the universe exactly:
// every key falls in exactly one point's region, with no gaps and no
// overlaps. A malformed start-point set would otherwise silently skip
// or double-send parts of the key-space.
func ValidateCoverage(points []StartPoint) error {
	m := region.NewMap[bool](false)
	for _, p := range points {
		if p.Region.IsEmpty() {
			continue
		}
		for _, e := range m.Mask(p.Region).Entries() {
			if e.Value {
				return fmt.Errorf("backfill: start-point regions overlap at %v", e.Region)
			}
		}
		m.Set(p.Region, true)
	}

	for _, e := range m.Entries() {
		if !e.Value {
			return fmt.Errorf("backfill: gap in start-point coverage at %v", e.Region)
		}
	}
	return nil
}

// TimestampFor returns the recency a producer should use for key, given
// the caller's start-point set, or types.DistantPast if no point covers
// it (meaning: send everything).
func TimestampFor(points []StartPoint, key []byte) types.Timestamp {
	for _, p := range points {
		if p.Region.Contains(key) {
			return p.Timestamp
		}
	}
	return types.DistantPast
}
