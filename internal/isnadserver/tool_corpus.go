package isnadserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go_isnad/internal/bootstrap"
	"github.com/anatolykoptev/go_isnad/internal/isnad/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerCorpusResolve(server *mcp.Server, app *bootstrap.App) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "corpus_resolve",
		Description: "Run every resolution pass (exact, context rules, name mappings, matn chain match) over a hadith corpus JSON, write the resolved corpus and record the run. Returns per-method coverage and the names still unresolved.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input CorpusResolveInput) (*mcp.CallToolResult, CorpusResolveOutput, error) {
		rep, run, err := app.ResolveCorpus(ctx, input.Corpus, input.Output)
		if err != nil {
			return nil, CorpusResolveOutput{}, err
		}
		if len(rep.Diagnostics) > 0 {
			slog.Warn("corpus_resolve: malformed records", slog.Int("count", len(rep.Diagnostics)))
		}
		return nil, corpusResolveOutput(run.ID, rep), nil
	})
}

func registerResolutionRuns(server *mcp.Server, app *bootstrap.App) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolution_runs",
		Description: "List recorded corpus resolution runs, newest first, with per-method counts. Pass run_id to fetch a single run.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input RunsInput) (*mcp.CallToolResult, RunsOutput, error) {
		out, err := listRuns(ctx, app.Runs, input)
		return nil, out, err
	})
}

func listRuns(ctx context.Context, runs *store.RunLog, input RunsInput) (RunsOutput, error) {
	if runs == nil {
		return RunsOutput{}, fmt.Errorf("run log is not configured (RUNS_DB_PATH)")
	}
	if input.RunID != "" {
		r, err := runs.Get(ctx, input.RunID)
		if err != nil {
			return RunsOutput{}, err
		}
		return RunsOutput{Runs: []RunView{runView(r)}}, nil
	}
	list, err := runs.List(ctx, input.Limit)
	if err != nil {
		return RunsOutput{}, err
	}
	out := RunsOutput{Runs: make([]RunView, 0, len(list))}
	for _, r := range list {
		out.Runs = append(out.Runs, runView(r))
	}
	return out, nil
}
