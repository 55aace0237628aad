package api

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/pipeline"
	"github.com/kalambet/asave/internal/retrieval"
	"github.com/kalambet/asave/internal/rules"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *fakeAnalyzer) {
	t.Helper()
	dir := t.TempDir()
	a := &fakeAnalyzer{loadOK: true}
	return MCPDeps{
		Service:   a,
		RulesPath: filepath.Join(dir, "rules.json"),
		RulesDir:  filepath.Join(dir, "out"),
		Logger:    zap.NewNop(),
	}, a
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_LoadStandards(t *testing.T) {
	deps, a := newTestMCPDeps(t)
	handler := mcpLoadStandards(deps)

	result, err := handler(context.Background(), makeCallToolRequest("load_standards", map[string]any{
		"fas_document": "FAS_4.pdf",
		"ss_document":  "SS_12.pdf",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var sess pipeline.Session
	if err := json.Unmarshal([]byte(toolText(t, result)), &sess); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if sess.FASDocID != "FAS_4.pdf" || sess.SSDocID != "SS_12.pdf" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if len(a.loaded) != 1 {
		t.Fatalf("expected 1 load, got %d", len(a.loaded))
	}
}

func TestMCPTool_LoadStandards_Failure(t *testing.T) {
	deps, a := newTestMCPDeps(t)
	a.loadOK = false

	result, _ := mcpLoadStandards(deps)(context.Background(), makeCallToolRequest("load_standards", map[string]any{
		"fas_document": "missing.pdf",
	}))
	if !result.IsError {
		t.Fatal("expected error result")
	}

	result, _ = mcpLoadStandards(deps)(context.Background(), makeCallToolRequest("load_standards", map[string]any{}))
	if !result.IsError {
		t.Fatal("expected error for missing fas_document")
	}
}

func TestMCPTool_AnalyzeSection(t *testing.T) {
	deps, a := newTestMCPDeps(t)
	handler := mcpAnalyzeSection(deps)
	req := makeCallToolRequest("analyze_section", map[string]any{"text": "Losses follow capital."})

	result, _ := handler(context.Background(), req)
	if !result.IsError {
		t.Fatal("expected error before standards are loaded")
	}

	a.session = &pipeline.Session{FASDocID: "FAS_4.pdf"}
	a.result = pipeline.Result{Stage: pipeline.StageSuggestion, Error: "suggestion stage did not produce a parsable revised paragraph"}

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var res pipeline.Result
	if err := json.Unmarshal([]byte(toolText(t, result)), &res); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !res.Halted() || res.OriginalText != "Losses follow capital." {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestMCPTool_MineRules(t *testing.T) {
	deps, a := newTestMCPDeps(t)
	a.report = pipeline.BatchReport{Total: 2}

	result, err := mcpMineRules(deps)(context.Background(), makeCallToolRequest("mine_rules", map[string]any{
		"documents": []any{"SS_8.pdf", "SS_12.pdf"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var resp mineResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.OK || resp.Report.Total != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(a.mined) != 2 || a.mineDir != deps.RulesDir {
		t.Fatalf("mined %v into %q", a.mined, a.mineDir)
	}
}

func TestMCPTool_MineRules_NoDocuments(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, _ := mcpMineRules(deps)(context.Background(), makeCallToolRequest("mine_rules", map[string]any{}))
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPTool_SearchStandard(t *testing.T) {
	deps, a := newTestMCPDeps(t)
	a.snippets = []retrieval.Snippet{
		{DocumentID: "SS_8.pdf", Content: "The seller must own the asset.", Score: 0.95},
		{DocumentID: "SS_8.pdf", ChunkIndex: 3, Content: "Price is fixed.", Score: 0.8},
	}
	handler := mcpSearchStandard(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_standard", map[string]any{
		"document": "SS_8.pdf",
		"query":    "ownership",
		"limit":    5,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var got []retrieval.Snippet
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(got))
	}
}

func TestMCPTool_SearchStandard_EmptyAndError(t *testing.T) {
	deps, a := newTestMCPDeps(t)
	handler := mcpSearchStandard(deps)
	req := makeCallToolRequest("search_standard", map[string]any{"document": "SS_8.pdf", "query": "x"})

	result, _ := handler(context.Background(), req)
	if result.IsError || toolText(t, result) != "[]" {
		t.Fatalf("expected empty list, got %q", toolText(t, result))
	}

	a.searchErr = errors.New("store offline")
	result, _ = handler(context.Background(), req)
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPResource_Rules(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpResourceRules(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("asave://rules"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := contents[0].(mcp.TextResourceContents).Text; text != "[]" {
		t.Fatalf("expected empty rules, got %s", text)
	}

	rs := []rules.ComplianceRule{{RuleID: "SS8_OWN", StandardRef: "SS 8", PrincipleKeywords: []string{}, Description: "Own first.", ValidationQueryTemplate: "{clause_text}"}}
	if err := rules.SaveFile(deps.RulesPath, rs); err != nil {
		t.Fatal(err)
	}
	contents, err = handler(context.Background(), makeReadResourceRequest("asave://rules"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []rules.ComplianceRule
	if err := json.Unmarshal([]byte(contents[0].(mcp.TextResourceContents).Text), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].RuleID != "SS8_OWN" {
		t.Fatalf("unexpected rules: %+v", got)
	}
}

func TestMCPResource_Session(t *testing.T) {
	deps, a := newTestMCPDeps(t)
	a.session = &pipeline.Session{FASDocID: "FAS_4.pdf"}

	contents, err := mcpResourceSession(deps)(context.Background(), makeReadResourceRequest("asave://session"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)
	if tc.URI != "asave://session" || tc.MIMEType != "application/json" {
		t.Fatalf("unexpected resource: %+v", tc)
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if NewMCPServer(deps) == nil {
		t.Fatal("expected server")
	}
}
