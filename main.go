// go_isnad: hadith narrator resolution MCP server.
//
// Resolves narrator names in isnad chains to registry identifiers and exposes
// seven MCP tools: narrator_normalize, narrator_resolve, narrator_variants,
// corpus_resolve, resolution_runs, shamela_scrape, shamela_coverage.
// The batch CLI over the same pipeline lives in cmd/isnad.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/anatolykoptev/go-mcpserver"
	"github.com/anatolykoptev/go_isnad/internal/bootstrap"
	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/anatolykoptev/go_isnad/internal/isnadserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var version = "dev"

func main() {
	cfg := bootstrap.FromEnv()

	slog.Info("starting go_isnad",
		slog.String("port", cfg.Port),
	)

	app, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		slog.Error("init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_isnad",
		Version: version,
	}, nil)

	isnadserver.RegisterTools(server, app)
	slog.Info("tools registered", slog.Int("count", isnadserver.ToolCount))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_isnad",
		Version:      version,
		Port:         cfg.Port,
		WriteTimeout: 600 * time.Second,
		Metrics:      isnad.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}
