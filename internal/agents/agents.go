// Package agents holds the role-specialised language-model agents: extraction,
// suggestion, validation and rule mining. Agents keep no state across calls
// beyond their configuration and read-only retrieval handles.
package agents

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/composer"
	"github.com/kalambet/asave/internal/llm"
	"github.com/kalambet/asave/internal/retrieval"
)

// ErrNotInitialized is reported when an operation needs a retrieval handle
// that was not supplied.
var ErrNotInitialized = errors.New("vector store / retrieval not initialized")

// Searcher is a retrieval handle bound to one document. *retrieval.Scoped
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Snippet, error)
}

// Backend is what every agent needs to build its language-model client.
type Backend struct {
	Generator llm.Generator
	Model     string
	Timeout   time.Duration
	Logger    *zap.Logger
}

func (b Backend) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func (b Backend) client(system string, temperature float32) *llm.Client {
	return llm.NewClient(b.Generator, b.Model,
		llm.WithSystemInstruction(system),
		llm.WithTemperature(temperature),
		llm.WithTimeout(b.Timeout),
		llm.WithLogger(b.logger()),
	)
}

// searchContext runs a best-effort retrieval and renders the hits under label.
// A missing handle, a failed search or an empty hit list yields fallback or
// an explanatory string instead of an error.
func searchContext(ctx context.Context, s Searcher, query string, k int, label, fallback string, logger *zap.Logger) string {
	if s == nil {
		return fallback
	}
	snippets, err := s.Search(ctx, query, k)
	if err != nil {
		logger.Warn("context retrieval failed", zap.String("label", label), zap.Error(err))
		return "Error retrieving context: " + err.Error()
	}
	text := composer.New(0).Compose(label, snippets)
	if text == "" {
		return fallback
	}
	return text
}
