package store

import (
	"context"
	"testing"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupNames(t *testing.T) {
	recs := groupNames([]NameRow{
		{ID: 101, Name: "سفيان الثوري"},
		{ID: 100, Name: "سفيان"},
		{ID: 101, Name: "سفيان"},
		{ID: 0, Name: "مجهول"},
		{ID: 100, Name: ""},
		{ID: 100, Name: "سفيان بن عيينة"},
	})
	assert.Equal(t, []isnad.Record{
		{ID: 100, Variants: []string{"سفيان", "سفيان بن عيينة"}},
		{ID: 101, Variants: []string{"سفيان الثوري", "سفيان"}},
	}, recs)
}

func TestMentionRows(t *testing.T) {
	c := isnad.NewChain("1/1a", "bukhari", "نص", "الحميدي", "وكيع")
	c.Mentions[0].Resolution = isnad.Resolution{ID: 200, Method: isnad.MethodExact}

	rows := mentionRows("run-1", []isnad.Chain{c})
	require.Len(t, rows, 2)

	require.NotNil(t, rows[0].NarratorID)
	assert.Equal(t, int64(200), *rows[0].NarratorID)
	assert.Equal(t, "exact_match", rows[0].Method)
	assert.Equal(t, "bukhari", rows[0].Source)
	assert.Equal(t, "run-1", rows[0].RunID)

	assert.Nil(t, rows[1].NarratorID)
	assert.Equal(t, "unresolved", rows[1].Method)
	assert.Equal(t, 1, rows[1].Position)
}

func TestSchemaEmbedded(t *testing.T) {
	data, err := schemaFS.ReadFile("schema/001_isnad.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "PRIMARY KEY (chain_id, position)")
	assert.Contains(t, upsertMention, "ON CONFLICT (chain_id, position)")
}

func TestConnectPostgres_RequiresURL(t *testing.T) {
	_, err := ConnectPostgres(context.Background(), "")
	assert.Error(t, err)
}
