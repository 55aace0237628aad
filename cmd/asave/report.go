package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kalambet/asave/internal/agents"
	"github.com/kalambet/asave/internal/pipeline"
	"github.com/kalambet/asave/internal/retrieval"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func section(w io.Writer, title, body string) {
	fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "== "+title+" =="))
	if strings.TrimSpace(body) == "" {
		body = "(none)"
	}
	fmt.Fprintln(w, body)
}

// printResult renders an orchestration result stage by stage. Stages after a
// halt are omitted.
func printResult(w io.Writer, res pipeline.Result) {
	section(w, "Original section", res.OriginalText)

	amb := res.AmbiguityRaw
	if res.AmbiguityFailed {
		amb = colorize(colorYellow, "ambiguity detection failed; generic review focus used") + "\n" + amb
	}
	section(w, "Ambiguities", amb)

	if res.Stage == pipeline.StageAmbiguity {
		haltNote(w, res)
		return
	}
	section(w, "FAS context", res.FASContext)
	section(w, "SS context", res.SSContext)

	if res.SuggestedText != "" {
		section(w, "Suggested revision", res.SuggestedText)
		section(w, "Reasoning", res.SuggestionReasoning)
	} else {
		section(w, "Suggestion (raw)", res.SuggestionRaw)
	}
	if res.Stage == pipeline.StageSuggestion || res.Stage == pipeline.StageContext {
		haltNote(w, res)
		return
	}

	section(w, "Shari'ah compliance", statusLine(res.ComplianceStatus, res.ComplianceFailed)+"\n"+res.ComplianceRaw)
	section(w, "Inter-standard consistency", statusLine(res.ConsistencyStatus, res.ConsistencyFailed)+"\n"+res.ConsistencyRaw)

	if res.Halted() {
		haltNote(w, res)
		return
	}
	fmt.Fprintf(w, "\n%s (%d ms)\n", colorize(colorGreen, "Analysis complete"), res.DurationMs)
}

func haltNote(w io.Writer, res pipeline.Result) {
	fmt.Fprintf(w, "\n%s at %s: %s\n", colorize(colorRed, "Halted"), res.Stage, res.Error)
}

func statusLine(status string, failed bool) string {
	switch {
	case failed:
		return colorize(colorRed, "Status: validation call failed")
	case status == "":
		return "Status: unknown"
	default:
		return colorize(colorCyan, "Status: "+status)
	}
}

func printBatchReport(w io.Writer, rep pipeline.BatchReport) {
	for _, d := range rep.Documents {
		if d.Error != "" {
			fmt.Fprintf(w, "  %s %s: %s\n", colorize(colorRed, "✗"), d.Document, d.Error)
			continue
		}
		fmt.Fprintf(w, "  %s %s: %d rules", colorize(colorGreen, "✓"), d.Document, d.Rules)
		if d.Path != "" {
			fmt.Fprintf(w, " -> %s", d.Path)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total rules: %d\n", rep.Total)
	if rep.CombinedPath != "" {
		fmt.Fprintf(w, "Combined file: %s\n", rep.CombinedPath)
	}
	if rep.CombinedError != "" {
		fmt.Fprintf(w, "Combined file not written: %s\n", rep.CombinedError)
	}
}

func printDefinitions(w io.Writer, defs []agents.Definition) {
	if len(defs) == 0 {
		fmt.Fprintln(w, "No definitions found.")
		return
	}
	for _, d := range defs {
		fmt.Fprintf(w, "%s\n  %s\n", colorize(colorBold, d.Term), d.Definition)
	}
}

func printSnippets(w io.Writer, snippets []retrieval.Snippet) {
	if len(snippets) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	for i, s := range snippets {
		fmt.Fprintf(w, "\n%s [chunk %d, score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), s.ChunkIndex, s.Score)
		text := s.Content
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Fprintf(w, "  %s\n", text)
	}
}

func printEnhancement(w io.Writer, e pipeline.Enhancement) {
	if e.Failed {
		section(w, "Enhancement failed", e.Raw)
		return
	}
	if !e.Proposal.Usable() {
		section(w, "Proposal (unparsed)", e.Raw)
		return
	}
	section(w, "Proposed clause for "+e.Standard, e.Proposal.Body)
	section(w, "Justification", e.Proposal.Reasoning)
}
