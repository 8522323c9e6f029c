package isnad

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sufyanRegistry() []Record {
	return []Record{
		{ID: 100, Variants: []string{"سفيان", "سفيان بن عيينة"}},
		{ID: 101, Variants: []string{"سفيان", "سفيان الثوري", "سفيان بن سعيد الثوري"}},
		{ID: 200, Variants: []string{"الحميدي"}},
		{ID: 300, Variants: []string{"الزهري"}},
	}
}

func TestBuildLookup_Partition(t *testing.T) {
	l := BuildLookup(sufyanRegistry())

	id, ok := l.Unique("سفيان بن عيينه")
	require.True(t, ok)
	assert.Equal(t, int64(100), id)

	_, ok = l.Unique("سفيان")
	assert.False(t, ok, "a collision is never also unique")
	assert.Equal(t, []int64{100, 101}, l.Collision("سفيان"))
	assert.Nil(t, l.Collision("الزهري"))

	for norm := range l.collisions {
		_, dup := l.unique[norm]
		assert.False(t, dup, "%q in both partitions", norm)
		assert.GreaterOrEqual(t, len(l.collisions[norm]), 2)
	}

	unique, collisions, narrators := l.Stats()
	assert.Equal(t, 5, unique)
	assert.Equal(t, 1, collisions)
	assert.Equal(t, 4, narrators)
}

func TestBuildLookup_VariantOrder(t *testing.T) {
	l := BuildLookup(sufyanRegistry())
	assert.Equal(t, []string{"سفيان بن سعيد الثوري", "سفيان الثوري", "سفيان"}, l.Variants(101))
	assert.Nil(t, l.Variants(999))
}

func TestBuildLookup_OrderIndependent(t *testing.T) {
	recs := sufyanRegistry()
	recs = append(recs,
		Record{ID: 3026, Variants: []string{"عَائِشَةُ"}},
		Record{ID: 3027, Variants: []string{"عائشة", "عائشة بنت سعد"}},
	)
	reversed := slices.Clone(recs)
	slices.Reverse(reversed)

	assert.Equal(t, BuildLookup(recs), BuildLookup(reversed))
}

func TestBuildLookup_MergesAndSkips(t *testing.T) {
	l := BuildLookup([]Record{
		{ID: 7, Variants: []string{"أنس"}},
		{ID: 7, Variants: []string{"انس بن مالك", "(١)"}},
		{ID: 0, Variants: []string{"مجهول"}},
	})

	id, ok := l.Unique("انس")
	require.True(t, ok, "repeated spellings of one id do not collide")
	assert.Equal(t, int64(7), id)
	assert.Equal(t, []string{"انس بن مالك", "انس"}, l.Variants(7))

	_, ok = l.Unique("مجهول")
	assert.False(t, ok)
	_, ok = l.Unique("")
	assert.False(t, ok)
}
