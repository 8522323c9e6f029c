package sources

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRegistry(t *testing.T) {
	path := writeFile(t, "narrators.json", `{
		"3027": ["عائشة بنت سعد"],
		"3026": ["عَائِشَةُ", "عائشة بنت أبي بكر"],
		"x1": ["مجهول"]
	}`)

	recs, err := LoadRegistry(path)
	assert.ErrorIs(t, err, isnad.ErrMalformed)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(3026), recs[0].ID)
	assert.Equal(t, []string{"عَائِشَةُ", "عائشة بنت أبي بكر"}, recs[0].Variants)
	assert.Equal(t, int64(3027), recs[1].ID)

	l := isnad.BuildLookup(recs)
	assert.Equal(t, int64(3026), l.Resolve("عائشة").ID)
}

func TestLoadRegistry_YAML(t *testing.T) {
	path := writeFile(t, "narrators.yaml", "\"100\":\n  - سفيان بن عيينة\n\"200\":\n  - الحميدي\n")
	recs, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []isnad.Record{
		{ID: 100, Variants: []string{"سفيان بن عيينة"}},
		{ID: 200, Variants: []string{"الحميدي"}},
	}, recs)
}

func TestDecodeRegistry_Errors(t *testing.T) {
	_, err := DecodeRegistry(strings.NewReader(`[1,2]`), JSON)
	require.Error(t, err)
	assert.NotErrorIs(t, err, isnad.ErrMalformed, "syntax errors are fatal")

	recs, err := DecodeRegistry(strings.NewReader(``), JSON)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
