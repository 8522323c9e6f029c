package isnadserver

import (
	"time"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/anatolykoptev/go_isnad/internal/isnad/sources"
	"github.com/anatolykoptev/go_isnad/internal/isnad/store"
)

// NormalizeInput is the input for narrator_normalize.
type NormalizeInput struct {
	Text string `json:"text" jsonschema:"Arabic text to normalize (narrator name or matn)"`
}

// NormalizeOutput is the result of narrator_normalize.
type NormalizeOutput struct {
	Normalized string   `json:"normalized"`
	Tokens     []string `json:"tokens"`
}

// ResolveInput is the input for narrator_resolve.
type ResolveInput struct {
	Name     string `json:"name" jsonschema:"Narrator name as written in the chain (e.g. سفيان)"`
	Neighbor string `json:"neighbor,omitempty" jsonschema:"Raw name of the narrator immediately before this one in the chain, used by context rules"`
}

// ResolveOutput is the result of narrator_resolve.
type ResolveOutput struct {
	Name       string   `json:"name"`
	Normalized string   `json:"normalized"`
	NarratorID int64    `json:"narrator_id,omitempty"`
	Method     string   `json:"method"`
	Outcome    string   `json:"outcome"`
	Key        string   `json:"key,omitempty"`
	Candidates []int64  `json:"candidates,omitempty"`
	Variants   []string `json:"variants,omitempty"`
}

// VariantsInput is the input for narrator_variants.
type VariantsInput struct {
	NarratorID int64 `json:"narrator_id" jsonschema:"Narrator identifier from the registry"`
}

// VariantsOutput is the result of narrator_variants.
type VariantsOutput struct {
	NarratorID int64    `json:"narrator_id"`
	Variants   []string `json:"variants"`
}

// CorpusResolveInput is the input for corpus_resolve.
type CorpusResolveInput struct {
	Corpus string `json:"corpus,omitempty" jsonschema:"Path of the corpus JSON to resolve (default: CORPUS_PATH)"`
	Output string `json:"output,omitempty" jsonschema:"Path to write the resolved corpus (default: OUTPUT_PATH, else the input)"`
}

// CorpusResolveOutput is the result of corpus_resolve.
type CorpusResolveOutput struct {
	RunID       string         `json:"run_id,omitempty"`
	Summary     string         `json:"summary"`
	Chains      int            `json:"chains"`
	Total       int            `json:"total"`
	Resolved    int            `json:"resolved"`
	Newly       int            `json:"newly_resolved"`
	Ambiguous   int            `json:"ambiguous"`
	ByMethod    map[string]int `json:"by_method"`
	Unresolved  []string       `json:"unresolved_names"`
	Diagnostics []string       `json:"diagnostics,omitempty"`
}

func corpusResolveOutput(runID string, rep *isnad.Report) CorpusResolveOutput {
	out := CorpusResolveOutput{
		RunID:      runID,
		Summary:    rep.Summary(),
		Chains:     rep.Chains,
		Total:      rep.Total,
		Resolved:   rep.Resolved(),
		Newly:      rep.NewlyResolved(),
		Ambiguous:  rep.Ambiguous,
		ByMethod:   make(map[string]int, len(rep.ByMethod)),
		Unresolved: rep.Unresolved,
	}
	if out.Unresolved == nil {
		out.Unresolved = []string{}
	}
	for m, n := range rep.ByMethod {
		out.ByMethod[string(m)] = n
	}
	for _, d := range rep.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, d.Error())
	}
	return out
}

// RunsInput is the input for resolution_runs.
type RunsInput struct {
	RunID string `json:"run_id,omitempty" jsonschema:"Return only this run"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of runs, newest first (default: 50)"`
}

// RunView is a recorded run with RFC 3339 timestamps.
type RunView struct {
	ID          string         `json:"id"`
	Corpus      string         `json:"corpus"`
	Started     string         `json:"started"`
	Finished    string         `json:"finished"`
	Chains      int            `json:"chains"`
	Total       int            `json:"total"`
	Resolved    int            `json:"resolved"`
	ByMethod    map[string]int `json:"by_method"`
	Unresolved  []string       `json:"unresolved_names"`
	Diagnostics int            `json:"diagnostics"`
	Error       string         `json:"error,omitempty"`
}

func runView(r store.Run) RunView {
	v := RunView{
		ID:          r.ID,
		Corpus:      r.Corpus,
		Started:     r.Started.Format(time.RFC3339),
		Finished:    r.Finished.Format(time.RFC3339),
		Chains:      r.Chains,
		Total:       r.Total,
		Resolved:    r.Resolved,
		ByMethod:    make(map[string]int, len(r.ByMethod)),
		Unresolved:  r.Unresolved,
		Diagnostics: r.Diagnostics,
		Error:       r.Error,
	}
	if v.Unresolved == nil {
		v.Unresolved = []string{}
	}
	for m, n := range r.ByMethod {
		v.ByMethod[string(m)] = n
	}
	return v
}

// RunsOutput is the result of resolution_runs.
type RunsOutput struct {
	Runs []RunView `json:"runs"`
}

// ScrapeInput is the input for shamela_scrape.
type ScrapeInput struct {
	Book   int    `json:"book" jsonschema:"Shamela book id (e.g. 1681)"`
	From   int    `json:"from" jsonschema:"First page number"`
	To     int    `json:"to,omitempty" jsonschema:"Last page number (default: from)"`
	Output string `json:"output,omitempty" jsonschema:"JSONL file to append pages to (default: first GROUND_TRUTH_PATHS entry)"`
}

// ScrapeOutput is the result of shamela_scrape.
type ScrapeOutput struct {
	Output  string                 `json:"output"`
	Summary *sources.ScrapeSummary `json:"summary"`
}

// CoverageInput is the input for shamela_coverage.
type CoverageInput struct {
	Book     int    `json:"book" jsonschema:"Shamela book id (e.g. 1681)"`
	From     int    `json:"from" jsonschema:"First page number"`
	To       int    `json:"to" jsonschema:"Last page number"`
	Input    string `json:"input,omitempty" jsonschema:"Scrape JSONL to check (default: first GROUND_TRUTH_PATHS entry)"`
	Rescrape bool   `json:"rescrape,omitempty" jsonschema:"Scrape the failed and missing pages, then check again"`
}

// CoverageOutput is the result of shamela_coverage.
type CoverageOutput struct {
	Input    string                  `json:"input"`
	Complete bool                    `json:"complete"`
	Report   *sources.CoverageReport `json:"report"`
	Rescrape *sources.ScrapeSummary  `json:"rescrape,omitempty"`
}
