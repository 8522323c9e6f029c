// Package isnadserver exposes narrator resolution as MCP tools.
package isnadserver

import (
	"github.com/anatolykoptev/go_isnad/internal/bootstrap"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools registers the isnad tools on the given MCP server:
// narrator_normalize, narrator_resolve, narrator_variants, corpus_resolve,
// resolution_runs, shamela_scrape, shamela_coverage.
func RegisterTools(server *mcp.Server, app *bootstrap.App) {
	registerNarratorNormalize(server)
	registerNarratorResolve(server, app)
	registerNarratorVariants(server, app)
	registerCorpusResolve(server, app)
	registerResolutionRuns(server, app)
	registerShamelaScrape(server, app)
	registerShamelaCoverage(server, app)
}

// ToolCount is the number of tools RegisterTools adds.
const ToolCount = 7
