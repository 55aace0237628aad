package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Snippet is one ranked passage returned by a search.
type Snippet struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
}

// Retriever embeds queries and searches a VectorStore.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
	logger   *zap.Logger
}

// NewRetriever creates a Retriever. logger may be nil.
func NewRetriever(embedder *Embedder, store VectorStore, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, store: store, logger: logger}
}

// Search returns the k passages of document docID most similar to query.
func (r *Retriever) Search(ctx context.Context, docID, query string, k int) ([]Snippet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search %s: empty query", docID)
	}
	if k <= 0 {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", docID, err)
	}

	scored, err := r.store.Search(ctx, docID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", docID, err)
	}

	r.logger.Debug("retrieved snippets",
		zap.String("document", docID),
		zap.Int("k", k),
		zap.Int("hits", len(scored)),
	)

	out := make([]Snippet, len(scored))
	for i, s := range scored {
		out[i] = Snippet{
			DocumentID: s.Collection,
			ChunkIndex: s.ChunkIndex,
			Content:    s.TextChunk,
			Score:      s.Score,
		}
	}
	return out, nil
}

// Indexed reports whether docID has any stored vectors.
func (r *Retriever) Indexed(ctx context.Context, docID string) (bool, error) {
	n, err := r.store.Count(ctx, docID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Scoped binds a Retriever to one document. It is the read-only retrieval
// handle agents hold for the lifetime of a session.
type Scoped struct {
	r     *Retriever
	docID string
}

// Scope returns a handle that searches only docID.
func (r *Retriever) Scope(docID string) *Scoped {
	return &Scoped{r: r, docID: docID}
}

func (s *Scoped) DocumentID() string { return s.docID }

func (s *Scoped) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	return s.r.Search(ctx, s.docID, query, k)
}
