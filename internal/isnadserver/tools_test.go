package isnadserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anatolykoptev/go_isnad/internal/bootstrap"
	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/anatolykoptev/go_isnad/internal/isnad/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver(t *testing.T) *isnad.Resolver {
	t.Helper()
	lookup := isnad.BuildLookup([]isnad.Record{
		{ID: 100, Variants: []string{"سفيان بن عيينة"}},
		{ID: 101, Variants: []string{"سفيان الثوري"}},
		{ID: 200, Variants: []string{"الحميدي", "عبد الله بن الزبير الحميدي"}},
	})
	ctxRules, err := isnad.NewContextRules([]isnad.ContextRule{{Raw: "سفيان", Neighbor: "الحميدي", Canonical: "سفيان بن عيينة"}})
	require.NoError(t, err)
	return isnad.NewResolver(lookup, ctxRules, nil, nil, isnad.Options{Workers: 1})
}

func TestRegisterTools(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "go_isnad", Version: "test"}, nil)
	app := &bootstrap.App{Resolver: testResolver(t)}
	assert.NotPanics(t, func() { RegisterTools(server, app) })
}

func TestResolveName(t *testing.T) {
	r := testResolver(t)

	tests := []struct {
		name     string
		input    ResolveInput
		id       int64
		method   string
		outcome  string
		variants int
	}{
		{"exact", ResolveInput{Name: "الحُمَيْدِيُّ"}, 200, "exact_match", "found", 2},
		{"context", ResolveInput{Name: "سفيان", Neighbor: "الحميدي"}, 100, "context_mapping", "found", 1},
		{"unknown neighbor", ResolveInput{Name: "سفيان", Neighbor: "وكيع"}, 0, "unresolved", "not_found", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := resolveName(r, tt.input)
			assert.Equal(t, tt.id, out.NarratorID)
			assert.Equal(t, tt.method, out.Method)
			assert.Equal(t, tt.outcome, out.Outcome)
			assert.Len(t, out.Variants, tt.variants)
			assert.Equal(t, isnad.Normalize(tt.input.Name), out.Normalized)
		})
	}
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	_, err := listRuns(ctx, nil, RunsInput{})
	assert.ErrorContains(t, err, "RUNS_DB_PATH")

	runs, err := store.OpenRunLog(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })

	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	rec, err := runs.Record(ctx, "bukhari.json", &isnad.Report{
		Started:  start,
		Finished: start.Add(time.Second),
		Chains:   1,
		Total:    2,
		ByMethod: map[isnad.Method]int{isnad.MethodExact: 2},
	}, nil)
	require.NoError(t, err)

	out, err := listRuns(ctx, runs, RunsInput{})
	require.NoError(t, err)
	require.Len(t, out.Runs, 1)
	assert.Equal(t, "2026-05-01T08:00:00Z", out.Runs[0].Started)
	assert.Equal(t, map[string]int{"exact_match": 2}, out.Runs[0].ByMethod)
	assert.NotNil(t, out.Runs[0].Unresolved)

	out, err = listRuns(ctx, runs, RunsInput{RunID: rec.ID})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, out.Runs[0].ID)

	_, err = listRuns(ctx, runs, RunsInput{RunID: "missing"})
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestCorpusResolveOutput(t *testing.T) {
	rep := &isnad.Report{
		Chains:      1,
		Total:       3,
		ByMethod:    map[isnad.Method]int{isnad.MethodExact: 2, isnad.MethodUnresolved: 1},
		Passes:      []isnad.PassResult{{Method: isnad.MethodExact, Resolved: 2}},
		Unresolved:  []string{"وكيع"},
		Ambiguous:   1,
		Diagnostics: []isnad.Diagnostic{{ChainID: "x", Position: -1, Reason: "no mentions"}},
	}
	out := corpusResolveOutput("run-1", rep)
	assert.Equal(t, 2, out.Resolved)
	assert.Equal(t, 2, out.Newly)
	assert.Equal(t, 1, out.Ambiguous)
	assert.Equal(t, 1, out.ByMethod["unresolved"])
	assert.Len(t, out.Diagnostics, 1)
	assert.Contains(t, out.Summary, "Total narrator mentions")

	empty := corpusResolveOutput("", &isnad.Report{ByMethod: map[isnad.Method]int{}})
	assert.NotNil(t, empty.Unresolved)
}

func TestScrapeOutput(t *testing.T) {
	cfg := bootstrap.Config{GroundTruthPaths: []string{"", "data/gt.jsonl"}}
	assert.Equal(t, "x.jsonl", scrapeOutput(cfg, ScrapeInput{Book: 1, Output: "x.jsonl"}))
	assert.Equal(t, "data/gt.jsonl", scrapeOutput(cfg, ScrapeInput{Book: 1}))
	assert.Equal(t, filepath.Join("data", "shamela_1681.jsonl"), scrapeOutput(bootstrap.Config{}, ScrapeInput{Book: 1681}))
}

func TestCheckCoverage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shamela_1681.jsonl")
	lines := `{"status":"success","book_id":1681,"page_number":1,"hadith_number":1,"hadith_blocks":[{"full_text":"حدثنا","matn":"","narrators":[{"id":"200","name":"الحميدي"}]}]}
{"status":"failed","book_id":1681,"page_number":2,"reason":"api_failure"}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	cfg := bootstrap.Config{GroundTruthPaths: []string{path}}

	out, err := checkCoverage(context.Background(), nil, cfg, CoverageInput{Book: 1681, From: 1, To: 3})
	require.NoError(t, err)
	assert.Equal(t, path, out.Input)
	assert.False(t, out.Complete)
	assert.Equal(t, []int{2, 3}, out.Report.PagesToRescrape)
	assert.Equal(t, 1, out.Report.HadithPresent)
	assert.Nil(t, out.Rescrape)

	_, err = checkCoverage(context.Background(), nil, cfg, CoverageInput{Book: 1681, From: 1, To: 3, Rescrape: true})
	assert.Error(t, err)

	_, err = checkCoverage(context.Background(), nil, cfg, CoverageInput{Book: 1681, From: 1})
	assert.Error(t, err)
}
