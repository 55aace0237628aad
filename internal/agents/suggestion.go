package agents

import (
	"context"

	"github.com/kalambet/asave/internal/llm"
)

// Section headers of the suggestion replies.
const (
	RevisedParagraphHeader    = "Revised Paragraph:"
	ClarificationReasonHeader = "Reasoning & Shari'ah Alignment:"
	EnhancementReasonHeader   = "Reasoning & Source Alignment:"
)

// Defaults substituted for context the caller did not provide.
const (
	NoFASContext      = "No specific FAS context provided."
	NoSSContext       = "No specific SS context provided."
	NoExternalContext = "No external standard context provided."
)

// ClarificationGrammar parses GenerateClarification replies.
var ClarificationGrammar = SectionGrammar{Body: RevisedParagraphHeader, Reasoning: ClarificationReasonHeader}

// EnhancementGrammar returns the grammar for ProposeEnhancementForGap replies
// about standardName.
func EnhancementGrammar(standardName string) SectionGrammar {
	return SectionGrammar{
		Body:      "Proposed Clause/Amendment for " + standardName + ":",
		Reasoning: EnhancementReasonHeader,
	}
}

// ClarificationRequest is the input of GenerateClarification.
type ClarificationRequest struct {
	OriginalText string
	Ambiguity    string
	FASContext   string
	SSContext    string
}

// GapRequest is the input of ProposeEnhancementForGap.
type GapRequest struct {
	GapDescription  string
	StandardName    string
	FASContext      string
	SSContext       string
	ExternalContext string
}

// SuggestionAgent drafts revised or new clause text.
type SuggestionAgent struct {
	client *llm.Client
}

func NewSuggestionAgent(b Backend) *SuggestionAgent {
	return &SuggestionAgent{client: b.client(suggestionSystem, suggestionTemperature)}
}

// GenerateClarification drafts a revision of req.OriginalText addressing
// req.Ambiguity. Parse the reply with ClarificationGrammar.
func (a *SuggestionAgent) GenerateClarification(ctx context.Context, req ClarificationRequest) llm.Result {
	return a.client.Generate(ctx, clarificationPrompt, llm.Vars{
		"original_text":        req.OriginalText,
		"identified_ambiguity": req.Ambiguity,
		"fas_context":          llm.OrDefault(req.FASContext, NoFASContext),
		"ss_context":           llm.OrDefault(req.SSContext, NoSSContext),
	})
}

// ProposeEnhancementForGap drafts a new or amended clause. Parse the reply
// with EnhancementGrammar(req.StandardName).
func (a *SuggestionAgent) ProposeEnhancementForGap(ctx context.Context, req GapRequest) llm.Result {
	return a.client.Generate(ctx, enhancementPrompt, llm.Vars{
		"gap_description":           req.GapDescription,
		"fas_name":                  req.StandardName,
		"fas_context":               llm.OrDefault(req.FASContext, NoFASContext),
		"ss_context":                llm.OrDefault(req.SSContext, NoSSContext),
		"external_standard_context": llm.OrDefault(req.ExternalContext, NoExternalContext),
	})
}
