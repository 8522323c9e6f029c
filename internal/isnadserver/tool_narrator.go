package isnadserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go_isnad/internal/bootstrap"
	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerNarratorNormalize(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "narrator_normalize",
		Description: "Normalize Arabic text the way narrator names are compared: strips diacritics and parenthetical notes, unifies alef/hamza/ya/ta marbuta forms, drops a fused leading waw. Returns the normalized string and its tokens.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input NormalizeInput) (*mcp.CallToolResult, NormalizeOutput, error) {
		norm := isnad.Normalize(input.Text)
		tokens := isnad.Tokens(norm)
		if tokens == nil {
			tokens = []string{}
		}
		return nil, NormalizeOutput{Normalized: norm, Tokens: tokens}, nil
	})
}

func registerNarratorResolve(server *mcp.Server, app *bootstrap.App) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "narrator_resolve",
		Description: "Resolve a narrator name from an isnad to a registry identifier. Tries the name itself (longest matching prefix, colliding names narrowed by elimination), then the context rule for the preceding narrator, then the name mappings. Returns the identifier, the method that found it, and candidates when ambiguous.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ResolveInput) (*mcp.CallToolResult, ResolveOutput, error) {
		if strings.TrimSpace(input.Name) == "" {
			return nil, ResolveOutput{}, fmt.Errorf("name is required")
		}
		return nil, resolveName(app.Resolver, input), nil
	})
}

func resolveName(r *isnad.Resolver, input ResolveInput) ResolveOutput {
	m, method := r.ResolveName(input.Name, input.Neighbor)
	out := ResolveOutput{
		Name:       input.Name,
		Normalized: isnad.Normalize(input.Name),
		NarratorID: m.ID,
		Method:     string(method),
		Outcome:    m.Outcome.String(),
		Key:        m.Key,
		Candidates: m.Candidates,
	}
	if m.ID != 0 {
		out.Variants = r.Lookup().Variants(m.ID)
	}
	return out
}

func registerNarratorVariants(server *mcp.Server, app *bootstrap.App) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "narrator_variants",
		Description: "List the normalized name variants known for a narrator identifier, longest first.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input VariantsInput) (*mcp.CallToolResult, VariantsOutput, error) {
		variants := app.Resolver.Lookup().Variants(input.NarratorID)
		if len(variants) == 0 {
			return nil, VariantsOutput{}, fmt.Errorf("narrator %d is not in the registry", input.NarratorID)
		}
		return nil, VariantsOutput{NarratorID: input.NarratorID, Variants: variants}, nil
	})
}
