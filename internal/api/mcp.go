package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/rules"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service   Analyzer
	RulesPath string
	RulesDir  string
	Logger    *zap.Logger
}

// NewMCPServer creates an MCP server with the asave analysis tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := server.NewMCPServer(
		"asave",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("asave reviews AAOIFI Financial Accounting Standards: load an FAS and an SS, analyse sections, and mine Shari'ah rules."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("load_standards",
			mcp.WithDescription("Index (if needed) and load an FAS document and an optional SS document for analysis."),
			mcp.WithString("fas_document", mcp.Description("FAS document name in the documents directory"), mcp.Required()),
			mcp.WithString("ss_document", mcp.Description("Optional Shari'ah standard document name")),
		),
		mcpLoadStandards(deps),
	)

	s.AddTool(
		mcp.NewTool("analyze_section",
			mcp.WithDescription("Run ambiguity detection, suggestion and validation over one section of the loaded FAS."),
			mcp.WithString("text", mcp.Description("Section text to analyse"), mcp.Required()),
			mcp.WithString("fas_label", mcp.Description("Standard name used in prompts (defaults to the FAS document)")),
		),
		mcpAnalyzeSection(deps),
	)

	s.AddTool(
		mcp.NewTool("mine_rules",
			mcp.WithDescription("Extract explicit Shari'ah rules from SS documents and write them as JSON rule files."),
			mcp.WithArray("documents", mcp.Description("SS document names"), mcp.Required(), mcp.WithStringItems()),
		),
		mcpMineRules(deps),
	)

	s.AddTool(
		mcp.NewTool("search_standard",
			mcp.WithDescription("Semantically search one indexed standard and return the closest excerpts."),
			mcp.WithString("document", mcp.Description("Document name"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchStandard(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"asave://session",
			"Current Session",
			mcp.WithResourceDescription("The loaded FAS and SS documents as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSession(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"asave://rules",
			"Explicit Rules",
			mcp.WithResourceDescription("Compliance rules used by validation"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRules(deps),
	)

	return s
}

func mcpLoadStandards(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		fas, err := req.RequireString("fas_document")
		if err != nil {
			return mcpError("fas_document is required"), nil
		}
		ss := req.GetString("ss_document", "")

		if !deps.Service.InitializeComponents(ctx, fas, ss) {
			return mcpError(fmt.Sprintf("could not load FAS document %q", fas)), nil
		}
		return mcpJSON(deps.Service.Session())
	}
}

func mcpAnalyzeSection(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		if deps.Service.Session() == nil {
			return mcpError("no standards loaded; call load_standards first"), nil
		}

		res := deps.Service.RunOrchestration(ctx, text, req.GetString("fas_label", ""))
		deps.Logger.Debug("section analyzed via MCP", zap.String("stage", string(res.Stage)), zap.Bool("halted", res.Halted()))
		return mcpJSON(res)
	}
}

func mcpMineRules(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs := req.GetStringSlice("documents", nil)
		if len(docs) == 0 {
			return mcpError("documents is required"), nil
		}

		report := deps.Service.MineRules(ctx, docs, deps.RulesDir)
		return mcpJSON(mineResponse{OK: report.OK(), Report: report})
	}
}

func mcpSearchStandard(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		doc, err := req.RequireString("document")
		if err != nil {
			return mcpError("document is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}

		snippets, err := deps.Service.Search(ctx, doc, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(snippets) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(snippets)
	}
}

func mcpResourceSession(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Service.Session())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", err)
		}
		return jsonResource(req.Params.URI, b), nil
	}
}

func mcpResourceRules(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		rs, err := rules.LoadFile(deps.RulesPath)
		if err != nil && !errors.Is(err, rules.ErrNoRules) {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
		if rs == nil {
			rs = []rules.ComplianceRule{}
		}
		b, err := json.Marshal(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal rules: %w", err)
		}
		return jsonResource(req.Params.URI, b), nil
	}
}

func jsonResource(uri string, b []byte) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
