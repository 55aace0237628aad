package agents

import (
	"regexp"
	"strings"
)

// ComplianceStatuses are the overall Shari'ah compliance verdicts.
var ComplianceStatuses = []string{
	"Compliant",
	"Potential Conflict",
	"Needs Further Scholarly Review",
	"Insufficient Information for Assessment",
}

// ConsistencyStatuses are the inter-standard consistency verdicts.
var ConsistencyStatuses = []string{
	"Consistent",
	"Potential Inconsistency",
	"Needs Further Review for Consistency",
}

var assessmentHeader = regexp.MustCompile(`(?i)assessment\s*:`)

// statusPattern matches label as a whole word that is not the tail of a
// hyphenated word, so "inconsistent" and "Non-Compliant" do not match.
func statusPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\w-])(` + regexp.QuoteMeta(label) + `)\b`)
}

// ParseStatus returns the allowed label that occurs first in text, ignoring
// case and matching whole words only. The text after an "Assessment:" header
// is searched before the full text. When two labels start at the same
// position the longer wins. It returns "" when no label occurs.
func ParseStatus(text string, allowed []string) string {
	if loc := assessmentHeader.FindStringIndex(text); loc != nil {
		if label := firstStatus(text[loc[1]:], allowed); label != "" {
			return label
		}
	}
	return firstStatus(text, allowed)
}

func firstStatus(text string, allowed []string) string {
	best, bestAt := "", -1
	for _, label := range allowed {
		m := statusPattern(strings.TrimSpace(label)).FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		at := m[2]
		if bestAt < 0 || at < bestAt || (at == bestAt && len(label) > len(best)) {
			best, bestAt = label, at
		}
	}
	return best
}
