package sources

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const corpusFixture = `[
 {"hadith_index": 1, "grade": "sahih",
  "matn_segments": ["إنما الأعمال بالنيات وإنما لكل امرئ ما نوى"],
  "chains": [{"chain_id": "1a", "type": "primary", "narrators": [
     {"name": "الحميدي", "narrator_id": "200", "attributes": {"role": "shaykh"}},
     {"name": "سفيان", "narrator_id": null},
     {"name": "الزهري", "narrator_id": 300, "narrator_id_resolution": "context_mapping", "narrator_id_ambiguous": [1, 2]}
  ]}]},
 {"hadith_index": 2, "chains": [{"narrators": [{"name": "وكيع"}]}]}
]`

func TestCorpus_Chains(t *testing.T) {
	c, err := DecodeCorpus(strings.NewReader(corpusFixture), "bukhari")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	chains := c.Chains()
	require.Len(t, chains, 2)

	assert.Equal(t, "1/1a", chains[0].ID)
	assert.Equal(t, "bukhari", chains[0].Source)
	assert.Equal(t, "إنما الأعمال بالنيات وإنما لكل امرئ ما نوى", chains[0].Content)
	assert.Equal(t, []isnad.Mention{
		{RawText: "الحميدي", Position: 0, Resolution: isnad.Resolution{ID: 200, Method: isnad.MethodExact}},
		{RawText: "سفيان", Position: 1, Resolution: isnad.Resolution{Method: isnad.MethodUnresolved}},
		{RawText: "الزهري", Position: 2, Resolution: isnad.Resolution{ID: 300, Method: isnad.MethodContext}},
	}, chains[0].Mentions)

	assert.Equal(t, "2/0", chains[1].ID)
	assert.Empty(t, chains[1].Content)
}

func TestCorpus_ApplyRoundTrip(t *testing.T) {
	c, err := DecodeCorpus(strings.NewReader(corpusFixture), "")
	require.NoError(t, err)
	chains := c.Chains()
	chains[0].Mentions[1].Resolution = isnad.Resolution{ID: 100, Method: isnad.MethodMatn}
	require.NoError(t, c.Apply(chains))

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))
	assert.Contains(t, buf.String(), "إنما", "arabic text is written unescaped")

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "sahih", out[0]["grade"])
	narrators := out[0]["chains"].([]any)[0].(map[string]any)["narrators"].([]any)
	first := narrators[0].(map[string]any)
	assert.Equal(t, map[string]any{"role": "shaykh"}, first["attributes"])
	assert.Equal(t, "exact_match", first["narrator_id_resolution"])

	second := narrators[1].(map[string]any)
	assert.Equal(t, float64(100), second["narrator_id"])
	assert.Equal(t, "matn_chain_match", second["narrator_id_resolution"])

	third := narrators[2].(map[string]any)
	assert.NotContains(t, third, "narrator_id_ambiguous")

	wakia := out[1]["chains"].([]any)[0].(map[string]any)["narrators"].([]any)[0].(map[string]any)
	assert.Contains(t, wakia, "narrator_id")
	assert.Nil(t, wakia["narrator_id"])

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, c.Save(path))
	again, err := LoadCorpus(path, "")
	require.NoError(t, err)
	assert.Equal(t, chains, again.Chains())
}

func TestCorpus_AmbiguousWriteBack(t *testing.T) {
	c, err := DecodeCorpus(strings.NewReader(`[{"hadith_index": 7, "chains": [{"narrators": [
		{"name": "سفيان", "narrator_id": null},
		{"name": "يحيى", "narrator_id": null, "narrator_id_ambiguous": [5, "6"]},
		{"name": "وكيع", "narrator_id": null, "narrator_id_ambiguous": [8, 9]}
	]}]}]`), "")
	require.NoError(t, err)

	chains := c.Chains()
	assert.Nil(t, chains[0].Mentions[0].Ambiguous)
	assert.Equal(t, []int64{5, 6}, chains[0].Mentions[1].Ambiguous)

	chains[0].Mentions[0].Ambiguous = []int64{100, 101}
	chains[0].Mentions[2].Resolution = isnad.Resolution{ID: 8, Method: isnad.MethodName}
	chains[0].Mentions[2].Ambiguous = nil
	require.NoError(t, c.Apply(chains))

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))
	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	narrators := out[0]["chains"].([]any)[0].(map[string]any)["narrators"].([]any)

	sufyan := narrators[0].(map[string]any)
	assert.Nil(t, sufyan["narrator_id"])
	assert.Equal(t, []any{float64(100), float64(101)}, sufyan["narrator_id_ambiguous"])
	assert.Equal(t, []any{float64(5), float64(6)}, narrators[1].(map[string]any)["narrator_id_ambiguous"])
	assert.NotContains(t, narrators[2].(map[string]any), "narrator_id_ambiguous", "resolved narrators drop the candidates")

	again, err := DecodeCorpus(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 101}, again.Chains()[0].Mentions[0].Ambiguous)
}

func TestCorpus_ApplyMismatch(t *testing.T) {
	c, err := DecodeCorpus(strings.NewReader(corpusFixture), "")
	require.NoError(t, err)

	assert.Error(t, c.Apply(nil))

	chains := c.Chains()
	chains[0].Mentions = chains[0].Mentions[:1]
	assert.Error(t, c.Apply(chains))
}

func TestDecodeCorpus_Invalid(t *testing.T) {
	_, err := DecodeCorpus(strings.NewReader(`{"not": "a list"}`), "")
	assert.Error(t, err)
}
