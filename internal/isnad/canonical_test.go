package isnad

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_PrefixFallback(t *testing.T) {
	l := BuildLookup([]Record{
		{ID: 3026, Variants: []string{"عايشة"}},
		{ID: 3027, Variants: []string{"عايشة بنت سعد"}},
	})

	m := l.Resolve("عَائِشَةُ رَضِيَ اللَّهُ عَنْهَا")
	assert.Equal(t, Found, m.Outcome)
	assert.Equal(t, int64(3026), m.ID)
	assert.Equal(t, "عايشه", m.Key)

	m = l.Resolve("عائشة بنت سعد")
	assert.Equal(t, Found, m.Outcome)
	assert.Equal(t, int64(3027), m.ID)
}

func TestResolve_CollisionElimination(t *testing.T) {
	l := BuildLookup([]Record{
		{ID: 3026, Variants: []string{"عَائِشَةُ"}},
		{ID: 3027, Variants: []string{"عائشة", "عائشة بنت سعد"}},
	})

	m := l.Resolve("عائشة")
	assert.Equal(t, Found, m.Outcome, "3027 owns a longer variant the bare name contradicts")
	assert.Equal(t, int64(3026), m.ID)

	m = l.Resolve("عائشة بنت سعد")
	assert.Equal(t, Found, m.Outcome)
	assert.Equal(t, int64(3027), m.ID)
}

func TestResolve_LongerVariantEliminated(t *testing.T) {
	l := BuildLookup([]Record{
		{ID: 3026, Variants: []string{"عايشة"}},
		{ID: 3027, Variants: []string{"عايشة", "عايشة بنت سعد"}},
	})

	m := l.Resolve("عائشة بنت أبي بكر")
	assert.Equal(t, Found, m.Outcome)
	assert.Equal(t, int64(3026), m.ID, "3027 is named bint Sa'd, which the full name contradicts")
	assert.Equal(t, "عايشه", m.Key)
	assert.Empty(t, m.Candidates)
}

func TestResolve_Ambiguous(t *testing.T) {
	t.Run("no survivors", func(t *testing.T) {
		m := BuildLookup(sufyanRegistry()).Resolve("سفيان")
		assert.Equal(t, Ambiguous, m.Outcome)
		assert.Zero(t, m.ID)
		assert.Equal(t, []int64{100, 101}, m.Candidates)
	})

	t.Run("shorter prefix not tried", func(t *testing.T) {
		l := BuildLookup([]Record{
			{ID: 5, Variants: []string{"محمد بن يوسف"}},
			{ID: 6, Variants: []string{"محمد بن يوسف"}},
			{ID: 7, Variants: []string{"محمد"}},
		})
		m := l.Resolve("محمد بن يوسف الفريابي")
		assert.Equal(t, Ambiguous, m.Outcome)
		assert.Equal(t, "محمد بن يوسف", m.Key)
		assert.Equal(t, []int64{5, 6}, m.Candidates)
	})
}

func TestResolve_NotFound(t *testing.T) {
	l := BuildLookup(sufyanRegistry())
	for _, name := range []string{"", "   ", "وكيع", "(١)"} {
		m := l.Resolve(name)
		assert.Equal(t, NotFound, m.Outcome, "name %q", name)
		assert.Zero(t, m.ID)
	}
}

func TestResolve_NormalizationEquivalence(t *testing.T) {
	l := BuildLookup(sufyanRegistry())
	a := l.Resolve("سُفْيَانُ بْنُ عُيَيْنَةَ")
	b := l.Resolve("وسفيان بن عيينة، قال")
	assert.Equal(t, Found, a.Outcome)
	assert.Equal(t, a.ID, b.ID)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "found", Found.String())
	assert.Equal(t, "ambiguous", Ambiguous.String())
	assert.Equal(t, "not_found", NotFound.String())
}
