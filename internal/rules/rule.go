// Package rules holds the ComplianceRule record and its JSON file store.
package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var doubledBraces = strings.NewReplacer("{{", "{", "}}", "}")

// NormalizeTemplate rewrites doubled-brace placeholders ("{{clause_text}}")
// to the single-brace form rule templates use.
func NormalizeTemplate(t string) string {
	return doubledBraces.Replace(t)
}

// ComplianceRule is one explicit Shari'ah requirement mined from a standard.
// ValidationQueryTemplate uses {clause_text} and {rule_description}
// placeholders and may reference other fields of the rule itself.
type ComplianceRule struct {
	RuleID                  string   `json:"rule_id"`
	StandardRef             string   `json:"standard_ref"`
	PrincipleKeywords       []string `json:"principle_keywords"`
	Description             string   `json:"description"`
	ValidationQueryTemplate string   `json:"validation_query_template"`
}

// MarshalJSON always emits principle_keywords as an array.
func (r ComplianceRule) MarshalJSON() ([]byte, error) {
	type plain ComplianceRule
	p := plain(r)
	if p.PrincipleKeywords == nil {
		p.PrincipleKeywords = []string{}
	}
	return json.Marshal(p)
}

// UnmarshalJSON normalizes a null or absent principle_keywords to an empty slice.
func (r *ComplianceRule) UnmarshalJSON(data []byte) error {
	type plain ComplianceRule
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.PrincipleKeywords == nil {
		p.PrincipleKeywords = []string{}
	}
	*r = ComplianceRule(p)
	return nil
}

// UniqueIDs returns a copy of rs in which repeated rule IDs get a numeric
// suffix ("_2", "_3", ...). The first occurrence keeps its ID.
func UniqueIDs(rs []ComplianceRule) []ComplianceRule {
	out := make([]ComplianceRule, len(rs))
	taken := make(map[string]bool, len(rs))
	for _, r := range rs {
		taken[r.RuleID] = true
	}
	seen := make(map[string]int, len(rs))
	for i, r := range rs {
		seen[r.RuleID]++
		if n := seen[r.RuleID]; n > 1 {
			id := r.RuleID + "_" + strconv.Itoa(n)
			for taken[id] {
				n++
				id = r.RuleID + "_" + strconv.Itoa(n)
			}
			seen[r.RuleID] = n
			taken[id] = true
			r.RuleID = id
		}
		out[i] = r
	}
	return out
}

func (r ComplianceRule) String() string {
	return fmt.Sprintf("%s (%s)", r.RuleID, r.StandardRef)
}
