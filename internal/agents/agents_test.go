package agents

import (
	"context"
	"strings"
	"sync"

	"github.com/kalambet/asave/internal/engine"
	"github.com/kalambet/asave/internal/retrieval"
)

// scriptGenerator answers each prompt with the reply of the first rule whose
// marker occurs in the prompt.
type scriptGenerator struct {
	mu      sync.Mutex
	rules   []scriptRule
	prompts []string
}

type scriptRule struct {
	marker string
	reply  string
	err    error
}

func (g *scriptGenerator) on(marker, reply string) *scriptGenerator {
	g.rules = append(g.rules, scriptRule{marker: marker, reply: reply})
	return g
}

func (g *scriptGenerator) fail(marker string, err error) *scriptGenerator {
	g.rules = append(g.rules, scriptRule{marker: marker, err: err})
	return g
}

func (g *scriptGenerator) Generate(_ context.Context, req engine.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, req.Prompt)
	for _, r := range g.rules {
		if strings.Contains(req.Prompt, r.marker) {
			return r.reply, r.err
		}
	}
	return "", nil
}

func (g *scriptGenerator) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func (g *scriptGenerator) backend() Backend {
	return Backend{Generator: g, Model: "test-model"}
}

type stubSearcher struct {
	snippets []retrieval.Snippet
	err      error
	queries  []string
}

func (s *stubSearcher) Search(_ context.Context, query string, k int) ([]retrieval.Snippet, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.snippets) {
		return s.snippets[:k], nil
	}
	return s.snippets, nil
}

func snippets(contents ...string) []retrieval.Snippet {
	out := make([]retrieval.Snippet, len(contents))
	for i, c := range contents {
		out[i] = retrieval.Snippet{DocumentID: "doc", ChunkIndex: i, Content: c, Score: 1 - float32(i)/10}
	}
	return out
}
