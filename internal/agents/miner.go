package agents

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/llm"
	"github.com/kalambet/asave/internal/rules"
)

// NoRulesSentinel is the phrase the model emits when a chunk states no rule.
const NoRulesSentinel = "No explicit rules found"

// minCandidateLen is the shortest candidate line, in characters, kept as a rule.
const minCandidateLen = 16

const (
	maxTopicLen   = 15
	chunkRefLen   = 80
	unknownNumber = "_Unknown"
)

// DefaultValidationTemplate is stored on mined rules whose reply lacks one.
const DefaultValidationTemplate = "Does the proposed accounting treatment in '{clause_text}' align with the Shari'ah rule: '{rule_description}'? Explain discrepancies."

var (
	standardNumberRe = regexp.MustCompile(`(?i)Standard No\. \((\d+)\)`)
	parenTopicRe     = regexp.MustCompile(`\(([^)]+)\)`)
	nonWordRe        = regexp.MustCompile(`[^a-zA-Z0-9_ ]`)
)

// StandardLabel is the short identity of a standard used in rule ids.
type StandardLabel struct {
	Number string
	Topic  string
	Short  string
}

// LabelStandard derives the number, topic and short label of a standard
// name such as "Shari'ah Standard No. (9) Ijarah" (label "SS9_Ijarah"). The
// topic is the first parenthesised phrase after the number, or the last word
// of the name; it is cut to 15 characters. A name without a number gets the
// "SS_Unknown" prefix.
func LabelStandard(standardName string) StandardLabel {
	l := StandardLabel{Number: unknownNumber}
	rest := standardName
	if m := standardNumberRe.FindStringSubmatchIndex(standardName); m != nil {
		l.Number = standardName[m[2]:m[3]]
		rest = standardName[m[1]:]
	}
	if m := parenTopicRe.FindStringSubmatch(rest); m != nil {
		l.Topic = strings.ReplaceAll(strings.TrimSpace(m[1]), " ", "_")
	} else if fields := strings.Fields(standardName); len(fields) > 0 {
		l.Topic = fields[len(fields)-1]
	}
	l.Short = strings.NewReplacer("(", "", ")", "").Replace("SS" + l.Number + "_" + llm.Truncate(l.Topic, maxTopicLen))
	return l
}

// RuleIDPrefix builds a rule id prefix from the standard label and the first
// four alphanumeric words of the candidate, upper-cased. A candidate with no
// usable words gets the "_RULE" suffix.
func RuleIDPrefix(label StandardLabel, candidate string) string {
	words := strings.Fields(nonWordRe.ReplaceAllString(candidate, ""))
	if len(words) > 4 {
		words = words[:4]
	}
	if len(words) == 0 {
		return label.Short + "_RULE"
	}
	return label.Short + "_" + strings.ToUpper(strings.Join(words, "_"))
}

// ParseCandidates turns a candidate-listing reply into rule sentences. The
// no-rules sentinel anywhere in the text means zero candidates.
func ParseCandidates(text string) []string {
	if strings.Contains(strings.ToLower(text), strings.ToLower(NoRulesSentinel)) {
		return nil
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "- "); ok {
			line = strings.TrimSpace(rest)
		}
		if utf8.RuneCountInString(line) < minCandidateLen {
			continue
		}
		out = append(out, line)
	}
	return out
}

// RuleMinerAgent mines explicit rules from Shari'ah standard text.
type RuleMinerAgent struct {
	client *llm.Client
	logger *zap.Logger
}

func NewRuleMinerAgent(b Backend) *RuleMinerAgent {
	return &RuleMinerAgent{
		client: b.client(minerSystem, minerTemperature),
		logger: b.logger(),
	}
}

// ExtractCandidateSentences lists the sentences of chunk that state a rule.
// A failed generation yields no candidates.
func (a *RuleMinerAgent) ExtractCandidateSentences(ctx context.Context, chunk, standardName string) []string {
	res := a.client.Generate(ctx, candidatesPrompt, llm.Vars{
		"text_chunk":    chunk,
		"standard_name": standardName,
	})
	if res.Failed {
		a.logger.Warn("candidate extraction failed", zap.String("standard", standardName), zap.Error(res.Err))
		return nil
	}
	return ParseCandidates(res.Text)
}

// NormalizeToRule asks the model to structure candidate as a rule record.
// It returns false when the reply is not a JSON object; missing or empty
// fields are filled with derived defaults.
func (a *RuleMinerAgent) NormalizeToRule(ctx context.Context, candidate, standardName, sourceChunk string) (rules.ComplianceRule, bool) {
	label := LabelStandard(standardName)
	prefix := RuleIDPrefix(label, candidate)

	res := a.client.Generate(ctx, normalizePrompt, llm.Vars{
		"rule_text":                  candidate,
		"standard_name":              standardName,
		"original_chunk_ref_snippet": llm.Truncate(sourceChunk, chunkRefLen),
		"generated_rule_id_prefix":   prefix,
		"standard_number":            label.Number,
		"standard_topic_name":        label.Topic,
	})
	if res.Failed {
		a.logger.Warn("rule normalization failed", zap.String("candidate", llm.Truncate(candidate, 50)), zap.Error(res.Err))
		return rules.ComplianceRule{}, false
	}

	var raw map[string]any
	if err := llm.DecodeJSON(res.Text, &raw); err != nil {
		a.logger.Warn("could not parse rule JSON",
			zap.String("candidate", llm.Truncate(candidate, 50)),
			zap.String("output", llm.Truncate(res.Text, 200)),
			zap.Error(err))
		return rules.ComplianceRule{}, false
	}
	return ruleFromJSON(raw, prefix, standardName, candidate), true
}

// ruleFromJSON builds a rule from a decoded reply, defaulting every missing
// or empty field. An empty keyword list is kept as is.
func ruleFromJSON(raw map[string]any, prefix, standardName, candidate string) rules.ComplianceRule {
	str := func(key string) string {
		s, _ := raw[key].(string)
		return strings.TrimSpace(s)
	}
	r := rules.ComplianceRule{
		RuleID:                  llm.OrDefault(str("rule_id"), prefix+"_TODO"),
		StandardRef:             llm.OrDefault(str("standard_ref"), standardName+" [Clause TODO]"),
		PrincipleKeywords:       keywords(raw["principle_keywords"]),
		Description:             llm.OrDefault(str("description"), "TODO: "+candidate),
		ValidationQueryTemplate: llm.OrDefault(rules.NormalizeTemplate(str("validation_query_template")), DefaultValidationTemplate),
	}
	return r
}

// keywords accepts a JSON array of strings or a comma-separated string.
func keywords(v any) []string {
	out := []string{}
	switch kw := v.(type) {
	case []any:
		for _, item := range kw {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(kw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// MineDocument extracts and normalizes rules from every chunk, keeping chunk
// order and, within a chunk, candidate order.
func (a *RuleMinerAgent) MineDocument(ctx context.Context, chunks []string, standardName string) []rules.ComplianceRule {
	var out []rules.ComplianceRule
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		candidates := a.ExtractCandidateSentences(ctx, chunk, standardName)
		a.logger.Debug("chunk mined", zap.String("standard", standardName), zap.Int("chunk", i), zap.Int("candidates", len(candidates)))
		for _, c := range candidates {
			if r, ok := a.NormalizeToRule(ctx, c, standardName, chunk); ok {
				out = append(out, r)
			}
		}
	}
	return out
}
