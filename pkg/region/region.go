// Package region implements the region algebra of spec §4.2/§6: a
// region is a half-open byte-string key range, the universe is the full
// key-space, and a RegionMap partitions the universe into disjoint
// regions each carrying an opaque value.
//
// No example repo in the corpus models a partitioned key-space directly;
// this package is a necessary domain-model addition (see DESIGN.md).
package region

import "bytes"

// Region is a half-open key range [Start, End). A nil End means "no upper
// bound" (extends to the maximum key).
type Region struct {
	Start []byte
	End   []byte // nil == unbounded
}

// Universe returns the region spanning the entire key-space.
func Universe() Region {
	return Region{Start: nil, End: nil}
}

// Contains reports whether key falls within r.
func (r Region) Contains(key []byte) bool {
	if r.Start != nil && bytes.Compare(key, r.Start) < 0 {
		return false
	}
	if r.End != nil && bytes.Compare(key, r.End) >= 0 {
		return false
	}
	return true
}

// Intersect returns the overlap of r and other, and whether they
// overlap at all.
func (r Region) Intersect(other Region) (Region, bool) {
	start := maxBytes(r.Start, other.Start)
	end := minBytes(r.End, other.End)
	if end != nil && bytes.Compare(start, end) >= 0 {
		return Region{}, false
	}
	return Region{Start: start, End: end}, true
}

// IsEmpty reports whether the region contains no keys.
func (r Region) IsEmpty() bool {
	return r.End != nil && bytes.Compare(r.Start, r.End) >= 0
}

// ContainsRegion reports whether other is entirely covered by r.
func (r Region) ContainsRegion(other Region) bool {
	if bytes.Compare(orZero(other.Start), orZero(r.Start)) < 0 {
		return false
	}
	if r.End == nil {
		return true
	}
	if other.End == nil {
		return false
	}
	return bytes.Compare(other.End, r.End) <= 0
}

// Union returns the smallest region spanning both r and other. Unlike
// Intersect, this does not require the two regions to be adjacent or
// overlapping; callers that track monotonically growing progress (e.g.
// a backfill cursor sweeping the key-space in order) rely on that.
func (r Region) Union(other Region) Region {
	// A nil Start is the lowest key and a nil End is unbounded, so either
	// one wins outright.
	start := minBytes(r.Start, other.Start)
	if r.Start == nil || other.Start == nil {
		start = nil
	}
	end := maxBytes(r.End, other.End)
	if r.End == nil || other.End == nil {
		end = nil
	}
	return Region{Start: start, End: end}
}

func maxBytes(a, b []byte) []byte {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if bytes.Compare(a, b) >= 0 {
		return a
	}
	return b
}

func minBytes(a, b []byte) []byte {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if bytes.Compare(a, b) <= 0 {
		return a
	}
	return b
}

// entry is one partition of a RegionMap.
type entry[T any] struct {
	region Region
	value  T
}

// Map is a total partitioning of the universe into disjoint regions, each
// mapped to a value of type T (spec §3 Metainfo: "a region-map ... over
// region partitions"). The zero value is not usable; use NewMap.
type Map[T any] struct {
	entries []entry[T]
}

// NewMap returns a RegionMap with the entire universe mapped to zero.
func NewMap[T any](zero T) *Map[T] {
	return &Map[T]{entries: []entry[T]{{region: Universe(), value: zero}}}
}

// Domain returns the union of all regions in the map, which must always
// equal the universe (spec invariant: "Metainfo domain equals the
// universe after every committed write").
func (m *Map[T]) Domain() Region {
	if len(m.entries) == 0 {
		return Region{}
	}
	dom := m.entries[0].region
	for _, e := range m.entries[1:] {
		dom = dom.Union(e.region)
	}
	return dom
}

// Get returns the value mapped to the partition containing key.
func (m *Map[T]) Get(key []byte) (T, bool) {
	for _, e := range m.entries {
		if e.region.Contains(key) {
			return e.value, true
		}
	}
	var zero T
	return zero, false
}

// Set replaces the mapping for the given region in-place: the region is
// carved out of whatever partitions currently cover it and remapped to
// value. Non-additive — this is what update_metainfo's "clear fully and
// rewrite" semantics reduce to at the in-memory level (spec §4.2).
func (m *Map[T]) Set(r Region, value T) {
	var next []entry[T]
	for _, e := range m.entries {
		remainder := subtract(e.region, r)
		for _, part := range remainder {
			next = append(next, entry[T]{region: part, value: e.value})
		}
	}
	next = append(next, entry[T]{region: r, value: value})
	m.entries = next
}

// Update overwrites the mapping for every region named in other,
// region-by-region, leaving regions outside other's domain untouched.
func (m *Map[T]) Update(other *Map[T]) {
	for _, e := range other.entries {
		m.Set(e.region, e.value)
	}
}

// Mask restricts the map to the portion overlapping r, dropping entries
// entirely outside it and clipping entries that straddle the boundary.
func (m *Map[T]) Mask(r Region) *Map[T] {
	out := &Map[T]{}
	for _, e := range m.entries {
		if overlap, ok := e.region.Intersect(r); ok && !overlap.IsEmpty() {
			out.entries = append(out.entries, entry[T]{region: overlap, value: e.value})
		}
	}
	return out
}

// Entries returns the map's (region, value) partitions in no particular
// order; callers that need the raw partitioning (e.g. to serialize
// metainfo into a superblock) use this instead of Get.
func (m *Map[T]) Entries() []struct {
	Region Region
	Value  T
} {
	out := make([]struct {
		Region Region
		Value  T
	}, len(m.entries))
	for i, e := range m.entries {
		out[i] = struct {
			Region Region
			Value  T
		}{Region: e.region, Value: e.value}
	}
	return out
}

// subtract returns the parts of base not covered by cut.
func subtract(base, cut Region) []Region {
	overlap, ok := base.Intersect(cut)
	if !ok || overlap.IsEmpty() {
		return []Region{base}
	}
	var out []Region
	// overlap.Start = max(base.Start, cut.Start) and is always >= base.Start,
	// so a left remainder exists exactly when that inequality is strict.
	if !bytes.Equal(orZero(base.Start), orZero(overlap.Start)) {
		out = append(out, Region{Start: base.Start, End: overlap.Start})
	}
	if overlap.End != nil && (base.End == nil || bytes.Compare(overlap.End, base.End) < 0) {
		out = append(out, Region{Start: overlap.End, End: base.End})
	}
	return out
}

func orZero(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
