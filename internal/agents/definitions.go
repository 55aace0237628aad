package agents

import (
	"strings"

	"github.com/kalambet/asave/internal/llm"
)

// Definition is one defined term extracted from a standard.
type Definition struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// ParseDefinitions decodes an ExtractDefinitions reply. Entries without a
// term are dropped. Malformed output is returned as an *llm.ParseError.
func ParseDefinitions(text string) ([]Definition, error) {
	var defs []Definition
	if err := llm.DecodeJSON(text, &defs); err != nil {
		return nil, err
	}
	out := defs[:0]
	for _, d := range defs {
		d.Term = strings.TrimSpace(d.Term)
		d.Definition = strings.TrimSpace(d.Definition)
		if d.Term == "" {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
