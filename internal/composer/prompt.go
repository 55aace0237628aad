// Package composer renders retrieved snippets into prompt context blocks.
package composer

import (
	"strings"

	"github.com/kalambet/asave/internal/retrieval"
)

const defaultMaxContextTokens = 4000

// Separator joins rendered blocks.
const Separator = "\n---\n"

// Composer renders snippets under a token budget.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected context.
// If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose renders each snippet as "<label>:\n<content>" and joins the blocks
// with Separator. Snippets keep their rank order; a block that does not fit
// in the remaining budget is skipped and later, smaller blocks may still be
// used. Returns "" when nothing is rendered.
func (c *Composer) Compose(label string, snippets []retrieval.Snippet) string {
	return c.ComposeFunc(func(retrieval.Snippet) string { return label }, snippets)
}

// ComposeFunc is Compose with a per-snippet label.
func (c *Composer) ComposeFunc(label func(retrieval.Snippet) string, snippets []retrieval.Snippet) string {
	remaining := c.MaxContextTokens
	sepTokens := EstimateTokens(Separator)

	blocks := make([]string, 0, len(snippets))
	for _, s := range snippets {
		content := strings.TrimSpace(s.Content)
		if content == "" {
			continue
		}
		block := label(s) + ":\n" + content
		cost := EstimateTokens(block)
		if len(blocks) > 0 {
			cost += sepTokens
		}
		if cost > remaining {
			continue
		}
		blocks = append(blocks, block)
		remaining -= cost
	}
	return strings.Join(blocks, Separator)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
