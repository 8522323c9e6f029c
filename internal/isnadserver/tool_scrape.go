package isnadserver

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/anatolykoptev/go_isnad/internal/bootstrap"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerShamelaScrape(server *mcp.Server, app *bootstrap.App) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "shamela_scrape",
		Description: "Scrape a page range of a Shamela book into ground-truth JSONL: hadith blocks, matn and linked narrator ids per page. Pages already scraped successfully are skipped. Ground truth is loaded at startup, so restart the server to use new pages.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ScrapeInput) (*mcp.CallToolResult, ScrapeOutput, error) {
		if input.Book <= 0 || input.From <= 0 {
			return nil, ScrapeOutput{}, fmt.Errorf("book and from are required")
		}
		to := input.To
		if to == 0 {
			to = input.From
		}
		out := scrapeOutput(app.Config, input)
		sum, err := app.Scraper.ScrapeRange(ctx, input.Book, input.From, to, out)
		if err != nil {
			return nil, ScrapeOutput{}, err
		}
		slog.Info("shamela_scrape: done",
			slog.Int("book", input.Book),
			slog.Int("succeeded", sum.Succeeded),
			slog.Int("skipped", sum.Skipped),
			slog.Int("blocks", sum.Blocks),
		)
		return nil, ScrapeOutput{Output: out, Summary: sum}, nil
	})
}

func scrapeOutput(cfg bootstrap.Config, input ScrapeInput) string {
	if input.Output != "" {
		return input.Output
	}
	for _, p := range cfg.GroundTruthPaths {
		if p != "" {
			return p
		}
	}
	return filepath.Join("data", fmt.Sprintf("shamela_%d.jsonl", input.Book))
}
