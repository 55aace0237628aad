package agents

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/llm"
)

// NoAmbiguitiesSentinel is the phrase the model emits when a passage has no
// findings.
const NoAmbiguitiesSentinel = "No significant ambiguities found"

// GenericReviewFocus replaces the ambiguity focus when none can be derived.
const GenericReviewFocus = "General review for clarity, Shari'ah alignment, and potential enhancement of the provided text."

const keyClauseTopK = 3

// ExtractionAgent finds definitions, key clauses and ambiguities in FAS text.
type ExtractionAgent struct {
	client *llm.Client
	fas    Searcher
	logger *zap.Logger
}

// NewExtractionAgent creates an ExtractionAgent. fas may be nil, in which case
// IdentifyKeyClauses reports ErrNotInitialized.
func NewExtractionAgent(b Backend, fas Searcher) *ExtractionAgent {
	return &ExtractionAgent{
		client: b.client(extractionSystem, extractionTemperature),
		fas:    fas,
		logger: b.logger(),
	}
}

// ExtractDefinitions asks for a JSON array of {term, definition}. The text is
// returned unparsed; see ParseDefinitions.
func (a *ExtractionAgent) ExtractDefinitions(ctx context.Context, chunk string) llm.Result {
	return a.client.Generate(ctx, definitionsPrompt, llm.Vars{"standard_text_chunk": chunk})
}

// FindAmbiguities returns either a numbered list of findings or the
// NoAmbiguitiesSentinel phrase.
func (a *ExtractionAgent) FindAmbiguities(ctx context.Context, chunk string) llm.Result {
	return a.client.Generate(ctx, ambiguitiesPrompt, llm.Vars{"standard_text_chunk": chunk})
}

// ClauseAnswer is a retrieval-grounded answer and the excerpts it used.
type ClauseAnswer struct {
	llm.Result
	Sources []string `json:"sources,omitempty"`
}

// IdentifyKeyClauses summarises the clauses of the bound FAS about topic.
func (a *ExtractionAgent) IdentifyKeyClauses(ctx context.Context, topic, standardName string) ClauseAnswer {
	if a.fas == nil {
		return ClauseAnswer{Result: llm.Failure(ErrNotInitialized)}
	}
	standardName = llm.OrDefault(standardName, "the standard")

	query := "What are the key clauses, rules, or requirements related to '" + topic + "' in " + standardName + "?"
	snippets, err := a.fas.Search(ctx, query, keyClauseTopK)
	if err != nil {
		a.logger.Warn("key clause retrieval failed", zap.String("topic", topic), zap.Error(err))
		return ClauseAnswer{Result: llm.Failure(err)}
	}

	sources := make([]string, 0, len(snippets))
	for _, s := range snippets {
		sources = append(sources, s.Content)
	}
	excerpts := strings.Join(sources, "\n\n")
	if excerpts == "" {
		excerpts = "No excerpts were found."
	}

	res := a.client.Generate(ctx, keyClausesPrompt, llm.Vars{
		"context":       excerpts,
		"topic":         topic,
		"standard_name": standardName,
	})
	if !res.Failed && strings.TrimSpace(res.Text) == "" {
		res.Text = "No answer found."
	}
	return ClauseAnswer{Result: res, Sources: sources}
}

// IsNoAmbiguities reports whether text carries the no-findings sentinel,
// ignoring case.
func IsNoAmbiguities(text string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(NoAmbiguitiesSentinel))
}

// AmbiguityFocus derives the single issue a suggestion should address from an
// ambiguity result: the first numbered finding, or GenericReviewFocus when
// the result failed or reported no findings.
func AmbiguityFocus(res llm.Result) string {
	if res.Failed || IsNoAmbiguities(res.Text) {
		return GenericReviewFocus
	}
	text := res.Text
	if _, after, ok := strings.Cut(text, "1."); ok {
		text = after
	}
	first, _, _ := strings.Cut(text, "2.")
	if first = strings.TrimSpace(first); first != "" {
		return first
	}
	if whole := strings.TrimSpace(res.Text); whole != "" {
		return whole
	}
	return GenericReviewFocus
}
