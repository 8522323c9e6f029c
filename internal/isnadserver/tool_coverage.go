package isnadserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anatolykoptev/go_isnad/internal/bootstrap"
	"github.com/anatolykoptev/go_isnad/internal/isnad/sources"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerShamelaCoverage(server *mcp.Server, app *bootstrap.App) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "shamela_coverage",
		Description: "Check how completely a Shamela scrape JSONL covers a page range: pages scraped, failed or missing, the pages to scrape again, and hadith numbers present, missing or duplicated. With rescrape, the failed and missing pages are scraped and the file checked again.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input CoverageInput) (*mcp.CallToolResult, CoverageOutput, error) {
		out, err := checkCoverage(ctx, app.Scraper, app.Config, input)
		if err != nil {
			return nil, CoverageOutput{}, err
		}
		slog.Info("shamela_coverage: done",
			slog.Int("book", input.Book),
			slog.Int("succeeded", out.Report.Succeeded),
			slog.Int("to_rescrape", len(out.Report.PagesToRescrape)),
			slog.Int("hadith_missing", len(out.Report.HadithMissing)),
		)
		return nil, out, nil
	})
}

func checkCoverage(ctx context.Context, s *sources.Scraper, cfg bootstrap.Config, input CoverageInput) (CoverageOutput, error) {
	if input.Book <= 0 || input.From <= 0 || input.To <= 0 {
		return CoverageOutput{}, errors.New("book, from and to are required")
	}
	path := scrapeOutput(cfg, ScrapeInput{Book: input.Book, Output: input.Input})
	rep, err := sources.Coverage(path, input.Book, input.From, input.To)
	if err != nil {
		return CoverageOutput{}, err
	}
	out := CoverageOutput{Input: path, Report: rep}
	if input.Rescrape && len(rep.PagesToRescrape) > 0 {
		if s == nil {
			return CoverageOutput{}, errors.New("rescrape needs a scraper")
		}
		sum, err := s.ScrapePages(ctx, input.Book, rep.PagesToRescrape, path)
		if err != nil {
			return CoverageOutput{}, err
		}
		out.Rescrape = sum
		if out.Report, err = sources.Coverage(path, input.Book, input.From, input.To); err != nil {
			return CoverageOutput{}, err
		}
	}
	out.Complete = out.Report.Complete()
	return out, nil
}
