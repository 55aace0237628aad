package agents

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/llm"
	"github.com/kalambet/asave/internal/rules"
)

const validationTopK = 3

// DefaultRuleTemplate is used for rules that carry no validation template.
const DefaultRuleTemplate = "Assess if '{clause_text}' conflicts with Shari'ah principle: {description} (Ref: {ref})."

// ErrNoClauseText is recorded for rules whose template never references
// {clause_text}.
var ErrNoClauseText = errors.New("template does not reference {clause_text}")

// DefaultAspect is the review aspect when the caller gives none.
const DefaultAspect = "the overall clause"

const (
	noSSRetrieved     = "No relevant Shari'ah Standard context automatically retrieved."
	noOtherFASContext = "No other FAS context automatically retrieved for consistency check."
)

// RuleCheck is the outcome of checking a proposal against one rule.
type RuleCheck struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Assessment  string `json:"assessment"`
	Err         error  `json:"-"`
}

// ValidationAgent checks proposed clause text against explicit rules and
// retrieved standard context.
type ValidationAgent struct {
	client *llm.Client
	rules  []rules.ComplianceRule
	ss     Searcher
	fas    Searcher
	logger *zap.Logger
}

// NewValidationAgent creates a ValidationAgent over a fixed rule set. ss
// grounds compliance checks and fas grounds consistency checks; either may
// be nil.
func NewValidationAgent(b Backend, rs []rules.ComplianceRule, ss, fas Searcher) *ValidationAgent {
	return &ValidationAgent{
		client: b.client(validationSystem, validationTemperature),
		rules:  rs,
		ss:     ss,
		fas:    fas,
		logger: b.logger(),
	}
}

// LoadRules reads the rule set at path. Any failure is logged and yields an
// empty set.
func LoadRules(path string, logger *zap.Logger) []rules.ComplianceRule {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil
	}
	rs, err := rules.LoadFile(path)
	if err != nil {
		if errors.Is(err, rules.ErrNoRules) {
			logger.Warn("no explicit rules file; validating without rules", zap.String("path", path))
		} else {
			logger.Warn("could not load explicit rules; validating without rules", zap.String("path", path), zap.Error(err))
		}
		return nil
	}
	logger.Info("explicit rules loaded", zap.String("path", path), zap.Int("count", len(rs)))
	return rs
}

// Rules returns the number of loaded rules.
func (a *ValidationAgent) Rules() int { return len(a.rules) }

// ruleVars resolves the placeholders a rule template may use.
func ruleVars(r rules.ComplianceRule, proposedText, aspect string) llm.Vars {
	return llm.Vars{
		"clause_text":      proposedText,
		"specific_aspect":  aspect,
		"description":      llm.OrDefault(r.Description, "N/A"),
		"rule_description": llm.OrDefault(r.Description, "N/A"),
		"ref":              llm.OrDefault(r.StandardRef, "N/A"),
		"standard_ref":     llm.OrDefault(r.StandardRef, "N/A"),
	}
}

// CheckRules assesses proposedText against every loaded rule, one model call
// per rule, and returns the running report with the individual checks. A
// rule whose template cannot be resolved is recorded with an error and
// skipped.
func (a *ValidationAgent) CheckRules(ctx context.Context, proposedText, aspect string) (string, []RuleCheck) {
	var report strings.Builder
	checks := make([]RuleCheck, 0, len(a.rules))

	for _, r := range a.rules {
		check := RuleCheck{RuleID: r.RuleID, Description: r.Description}
		check.Assessment, check.Err = a.checkRule(ctx, r, proposedText, aspect)
		if check.Err != nil {
			a.logger.Warn("rule check skipped", zap.String("rule_id", r.RuleID), zap.Error(check.Err))
		}
		fmt.Fprintf(&report, "\nCheck against Rule '%s' (%s):\nAssessment: %s\n", r.RuleID, r.Description, check.Assessment)
		checks = append(checks, check)
	}
	return report.String(), checks
}

func (a *ValidationAgent) checkRule(ctx context.Context, r rules.ComplianceRule, proposedText, aspect string) (string, error) {
	text := llm.OrDefault(r.ValidationQueryTemplate, DefaultRuleTemplate)
	tmpl, err := llm.ParseTemplate("rule "+r.RuleID, text)
	if err != nil {
		return "Error formatting query - " + err.Error() + ".", err
	}
	if !slices.Contains(tmpl.Placeholders(), "clause_text") {
		return "Error formatting query - " + ErrNoClauseText.Error() + ".", ErrNoClauseText
	}
	inv, err := tmpl.Bind(ruleVars(r, proposedText, aspect))
	if err != nil {
		var be *llm.BindingError
		if errors.As(err, &be) {
			return "Error formatting query - missing key " + strings.Join(be.Missing, ", ") + ".", err
		}
		return "Error formatting query - " + err.Error() + ".", err
	}
	res := a.client.GenerateText(ctx, inv.Prompt)
	if res.Failed {
		return res.Text, res.Err
	}
	return strings.TrimSpace(res.Text), nil
}

// ValidateShariahCompliance checks proposedText against the explicit rules
// and retrieved SS context and asks for an overall status from
// ComplianceStatuses.
func (a *ValidationAgent) ValidateShariahCompliance(ctx context.Context, proposedText, aspect string) llm.Result {
	aspect = llm.OrDefault(aspect, DefaultAspect)
	report, _ := a.CheckRules(ctx, proposedText, aspect)
	if report == "" {
		report = "No explicit rules were available for checking."
	}

	ssContext := searchContext(ctx, a.ss, proposedText+" "+aspect, validationTopK, "Source Chunk", noSSRetrieved, a.logger)

	return a.client.Generate(ctx, compliancePrompt, llm.Vars{
		"proposed_text":                proposedText,
		"specific_aspect_under_review": aspect,
		"explicit_rules_assessment":    report,
		"shariah_standard_context":     ssContext,
	})
}

// ValidateInterStandardConsistency checks proposedText for terminology and
// treatment conflicts against retrieved FAS context and asks for a status
// from ConsistencyStatuses.
func (a *ValidationAgent) ValidateInterStandardConsistency(ctx context.Context, proposedText, standardName string) llm.Result {
	query := "Definitions or rules related to concepts in: " + llm.Truncate(proposedText, 100)
	fasContext := searchContext(ctx, a.fas, query, validationTopK, "Relevant excerpt from another FAS", noOtherFASContext, a.logger)

	return a.client.Generate(ctx, consistencyPrompt, llm.Vars{
		"proposed_text":     proposedText,
		"fas_name":          standardName,
		"other_fas_context": fasContext,
	})
}
