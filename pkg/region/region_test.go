package region

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapDomainIsUniverseAfterSet(t *testing.T) {
	m := NewMap(0)
	m.Set(Region{Start: []byte("d"), End: []byte("m")}, 1)
	m.Set(Region{Start: []byte("a"), End: []byte("d")}, 2)

	dom := m.Domain()
	require.Nil(t, dom.Start)
	require.Nil(t, dom.End)

	v, ok := m.Get([]byte("e"))
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = m.Get([]byte("b"))
	require.True(t, ok)
	require.Equal(t, 2, v)

	v, ok = m.Get([]byte("z"))
	require.True(t, ok)
	require.Equal(t, 0, v)
}

func TestMapMaskClipsToRequestedRegion(t *testing.T) {
	m := NewMap("zero")
	m.Set(Region{Start: []byte("a"), End: []byte("z")}, "live")

	masked := m.Mask(Region{Start: []byte("c"), End: []byte("f")})
	entries := masked.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, []byte("c"), entries[0].Region.Start)
	require.Equal(t, []byte("f"), entries[0].Region.End)
	require.Equal(t, "live", entries[0].Value)
}

func TestRegionIntersectDisjoint(t *testing.T) {
	a := Region{Start: []byte("a"), End: []byte("b")}
	b := Region{Start: []byte("c"), End: []byte("d")}
	_, ok := a.Intersect(b)
	require.False(t, ok)
}

func TestUpdateIsNonAdditive(t *testing.T) {
	m := NewMap(0)
	m.Set(Universe(), 1)

	overwrite := NewMap(0)
	overwrite.entries = []entry[int]{{region: Universe(), value: 9}}
	m.Update(overwrite)

	v, _ := m.Get([]byte("anything"))
	require.Equal(t, 9, v)
	require.Len(t, m.entries, 1)
}
