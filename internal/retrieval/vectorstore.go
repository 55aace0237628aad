package retrieval

import (
	"context"
	"time"
)

// VectorStore stores embedded chunks grouped into collections (one per
// source document) and answers nearest-neighbour queries within a collection.
type VectorStore interface {
	// Replace atomically swaps the contents of collection for records.
	Replace(ctx context.Context, collection string, records []Record) error

	// Search returns the topK records of collection most similar to vector,
	// best first.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]ScoredRecord, error)

	// Count returns the number of records in collection.
	Count(ctx context.Context, collection string) (int, error)
}

// Record is one embedded chunk.
type Record struct {
	ID         string
	Collection string
	ChunkIndex int
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with its cosine similarity to the query.
type ScoredRecord struct {
	Record
	Score float32
}
