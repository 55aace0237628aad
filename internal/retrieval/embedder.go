package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/asave/internal/engine"
)

const (
	// embedConcurrency bounds parallel embedding calls against the backend.
	embedConcurrency = 4
	// embedBatchSize is the number of texts sent per batched request.
	embedBatchSize = 32
)

// Embedder turns text into vectors with one embedding model.
type Embedder struct {
	engine engine.Engine
	model  string
}

func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

func (e *Embedder) Model() string { return e.model }

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding text: backend returned an empty vector")
	}
	return vec, nil
}

// EmbedBatch embeds texts concurrently, preserving input order. Engines
// that implement engine.BatchEmbedder receive texts in groups of
// embedBatchSize; others get one call per text. It returns nil for empty
// input and fails as a whole if any text fails.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	be, batched := e.engine.(engine.BatchEmbedder)
	if !batched {
		for i, text := range texts {
			g.Go(func() error {
				vec, err := e.Embed(gCtx, text)
				if err != nil {
					return fmt.Errorf("chunk %d: %w", i, err)
				}
				results[i] = vec
				return nil
			})
		}
	} else {
		for start := 0; start < len(texts); start += embedBatchSize {
			end := min(start+embedBatchSize, len(texts))
			g.Go(func() error {
				vecs, err := be.EmbedBatch(gCtx, e.model, texts[start:end])
				if err != nil {
					return fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
				}
				if len(vecs) != end-start {
					return fmt.Errorf("embedding chunks %d-%d: backend returned %d vectors", start, end-1, len(vecs))
				}
				for j, vec := range vecs {
					if len(vec) == 0 {
						return fmt.Errorf("chunk %d: backend returned an empty vector", start+j)
					}
				}
				copy(results[start:end], vecs)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
