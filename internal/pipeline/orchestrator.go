package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/agents"
	"github.com/kalambet/asave/internal/composer"
	"github.com/kalambet/asave/internal/llm"
)

// Stage names one step of the orchestration.
type Stage string

const (
	StageAmbiguity   Stage = "ambiguity_detection"
	StageContext     Stage = "context_retrieval"
	StageSuggestion  Stage = "suggestion_generation"
	StageCompliance  Stage = "compliance_validation"
	StageConsistency Stage = "consistency_validation"
	StageDone        Stage = "done"
)

const (
	defaultContextTopK = 2
	ssQueryPrefixLen   = 150
)

const (
	noFASRetrieved = "No specific FAS context retrieved."
	noSSRetrieved  = "No specific SS context retrieved or SS not loaded."
)

// notInitialized is the Result error of a run without a session.
const notInitialized = "core components not initialized; load standards first"

// Result is the outcome of one orchestration run. Fields of stages after a
// halt stay empty; Error is set only when the run halted.
type Result struct {
	OriginalText string `json:"original_text"`
	FASLabel     string `json:"fas_label,omitempty"`

	AmbiguityRaw    string `json:"ambiguity_raw,omitempty"`
	AmbiguityFailed bool   `json:"ambiguity_failed,omitempty"`
	AmbiguityFocus  string `json:"ambiguity_focus,omitempty"`

	FASContext string `json:"fas_context,omitempty"`
	SSContext  string `json:"ss_context,omitempty"`

	SuggestionRaw       string               `json:"suggestion_raw,omitempty"`
	SuggestionParse     *agents.ParseOutcome `json:"suggestion_parse,omitempty"`
	SuggestedText       string               `json:"suggested_text,omitempty"`
	SuggestionReasoning string               `json:"suggestion_reasoning,omitempty"`

	ComplianceRaw    string `json:"compliance_raw,omitempty"`
	ComplianceFailed bool   `json:"compliance_failed,omitempty"`
	ComplianceStatus string `json:"compliance_status,omitempty"`

	ConsistencyRaw    string `json:"consistency_raw,omitempty"`
	ConsistencyFailed bool   `json:"consistency_failed,omitempty"`
	ConsistencyStatus string `json:"consistency_status,omitempty"`

	// Stage is the last stage reached: StageDone on success, otherwise the
	// stage that halted the run.
	Stage      Stage  `json:"stage"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Halted reports whether the run stopped before completing every stage.
func (r Result) Halted() bool { return r.Error != "" }

// Orchestrator runs the five analysis stages over one FAS section:
// ambiguity detection, context retrieval, suggestion, compliance validation
// and consistency validation. Only an unusable suggestion halts the run;
// every other stage degrades to placeholder text.
type Orchestrator struct {
	topK     int
	composer *composer.Composer
	logger   *zap.Logger
}

// NewOrchestrator creates an Orchestrator. topK bounds the excerpts retrieved
// per corpus for the suggestion stage (default 2 if <= 0).
func NewOrchestrator(topK int, comp *composer.Composer, logger *zap.Logger) *Orchestrator {
	if topK <= 0 {
		topK = defaultContextTopK
	}
	if comp == nil {
		comp = composer.New(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{topK: topK, composer: comp, logger: logger}
}

// Run analyses sectionText within sess. fasLabel names the standard in
// prompts and defaults to the session's FAS document id.
func (o *Orchestrator) Run(ctx context.Context, sess *Session, sectionText, fasLabel string) (res Result) {
	start := time.Now()
	res = Result{OriginalText: sectionText}
	defer func() {
		res.DurationMs = time.Since(start).Milliseconds()
	}()

	if sess == nil {
		res.Stage = StageAmbiguity
		res.Error = notInitialized
		return res
	}
	if fasLabel == "" {
		fasLabel = sess.FASDocID
	}
	res.FASLabel = fasLabel
	log := o.logger.With(zap.String("fas", sess.FASDocID), zap.String("ss", sess.SSDocID))

	// 1. Ambiguity detection.
	res.Stage = StageAmbiguity
	amb := sess.Extraction.FindAmbiguities(ctx, sectionText)
	res.AmbiguityRaw = amb.Text
	res.AmbiguityFailed = amb.Failed
	res.AmbiguityFocus = agents.AmbiguityFocus(amb)
	if amb.Failed {
		log.Warn("ambiguity detection failed; using generic focus", zap.String("stage", string(StageAmbiguity)), zap.Error(amb.Err))
	}

	// 2. Context retrieval.
	res.Stage = StageContext
	res.FASContext, res.SSContext = o.retrieveContext(ctx, sess, sectionText, log)

	// 3. Suggestion generation.
	res.Stage = StageSuggestion
	sug := sess.Suggestion.GenerateClarification(ctx, agents.ClarificationRequest{
		OriginalText: sectionText,
		Ambiguity:    res.AmbiguityFocus,
		FASContext:   res.FASContext,
		SSContext:    res.SSContext,
	})
	res.SuggestionRaw = sug.Text
	if sug.Failed {
		log.Warn("suggestion generation failed; halting", zap.String("stage", string(StageSuggestion)), zap.Error(sug.Err))
		res.Error = "suggestion stage failed: " + sug.Err.Error()
		return res
	}
	parsed := agents.ClarificationGrammar.Parse(sug.Text)
	res.SuggestionParse = &parsed.Outcome
	if !parsed.Usable() {
		log.Warn("suggestion had no revised paragraph; halting", zap.String("stage", string(StageSuggestion)))
		res.Error = "suggestion stage did not produce a parsable revised paragraph"
		return res
	}
	res.SuggestedText = parsed.Body
	res.SuggestionReasoning = parsed.Reasoning

	// 4. Shari'ah compliance validation.
	res.Stage = StageCompliance
	comp := sess.Validation.ValidateShariahCompliance(ctx, res.SuggestedText, res.AmbiguityFocus)
	res.ComplianceRaw = comp.Text
	res.ComplianceFailed = comp.Failed
	if comp.Failed {
		log.Warn("compliance validation failed", zap.String("stage", string(StageCompliance)), zap.Error(comp.Err))
	} else {
		res.ComplianceStatus = agents.ParseStatus(comp.Text, agents.ComplianceStatuses)
	}

	// 5. Inter-standard consistency validation.
	res.Stage = StageConsistency
	cons := sess.Validation.ValidateInterStandardConsistency(ctx, res.SuggestedText, fasLabel)
	res.ConsistencyRaw = cons.Text
	res.ConsistencyFailed = cons.Failed
	if cons.Failed {
		log.Warn("consistency validation failed", zap.String("stage", string(StageConsistency)), zap.Error(cons.Err))
	} else {
		res.ConsistencyStatus = agents.ParseStatus(cons.Text, agents.ConsistencyStatuses)
	}

	res.Stage = StageDone
	log.Info("orchestration complete",
		zap.String("compliance", res.ComplianceStatus),
		zap.String("consistency", res.ConsistencyStatus),
	)
	return res
}

// retrieveContext gathers FAS and SS excerpts for the suggestion stage.
// Failures degrade to placeholder text.
func (o *Orchestrator) retrieveContext(ctx context.Context, sess *Session, sectionText string, log *zap.Logger) (fasCtx, ssCtx string) {
	fasCtx, ssCtx = noFASRetrieved, noSSRetrieved

	if sess.FAS != nil {
		snippets, err := sess.FAS.Search(ctx, sectionText, o.topK)
		if err != nil {
			log.Warn("FAS context retrieval failed", zap.String("stage", string(StageContext)), zap.Error(err))
		} else if text := o.composer.Compose("FAS Excerpt ("+sess.FASDocID+")", snippets); text != "" {
			fasCtx = text
		}
	}

	if sess.SS != nil {
		query := "Shari'ah principles (from AAOIFI SS " + sess.SSDocID + ") relevant to: " + llm.Truncate(sectionText, ssQueryPrefixLen)
		snippets, err := sess.SS.Search(ctx, query, o.topK)
		if err != nil {
			log.Warn("SS context retrieval failed", zap.String("stage", string(StageContext)), zap.Error(err))
		} else if text := o.composer.Compose("Shari'ah Standard Excerpt ("+sess.SSDocID+")", snippets); text != "" {
			ssCtx = text
		}
	}
	return fasCtx, ssCtx
}
