package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/retrieval"
	"github.com/kalambet/asave/internal/storage"
)

// BatchEmbedder generates embeddings for many texts, preserving order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorReplacer swaps the stored vectors of one collection.
type VectorReplacer interface {
	Replace(ctx context.Context, collection string, records []retrieval.Record) error
}

// ErrOutsideDocuments is returned by a confined Indexer for names that
// resolve outside its documents directory.
var ErrOutsideDocuments = errors.New("path is outside the documents directory")

// DocumentRecorder tracks the indexing state of documents.
type DocumentRecorder interface {
	UpsertDocument(d storage.Document) error
	MarkIndexed(id string, chunkCount int) error
	MarkFailed(id string, errMsg string) error
}

// Indexer loads, chunks and embeds documents into the vector store.
type Indexer struct {
	chunker  *Chunker
	embedder BatchEmbedder
	vectors  VectorReplacer
	docs     DocumentRecorder
	docsDir  string
	confined bool
	logger   *zap.Logger
}

// NewIndexer creates an Indexer. docsDir resolves bare document ids to paths.
func NewIndexer(chunker *Chunker, embedder BatchEmbedder, vectors VectorReplacer, docs DocumentRecorder, docsDir string, logger *zap.Logger) *Indexer {
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
		docs:     docs,
		docsDir:  docsDir,
		logger:   logger,
	}
}

// Confine restricts the indexer to files inside the documents directory.
// It must be called before the indexer is shared.
func (ix *Indexer) Confine() *Indexer {
	ix.confined = true
	return ix
}

// Resolve maps a document id or path to a file path. Existing paths are
// returned unchanged; anything else is looked up in the documents directory.
// A confined indexer only accepts names inside the documents directory.
func (ix *Indexer) Resolve(name string) (string, error) {
	if ix.confined {
		return ix.within(name)
	}
	if filepath.IsAbs(name) || ix.docsDir == "" {
		return name, nil
	}
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	return filepath.Join(ix.docsDir, name), nil
}

func (ix *Indexer) within(name string) (string, error) {
	if ix.docsDir == "" {
		return "", fmt.Errorf("%w: no documents directory configured", ErrOutsideDocuments)
	}
	dir, err := filepath.Abs(ix.docsDir)
	if err != nil {
		return "", fmt.Errorf("resolving documents directory: %w", err)
	}
	if filepath.IsAbs(name) {
		if path := filepath.Clean(name); inside(dir, path) {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", ErrOutsideDocuments, name)
	}
	// Relative names may already carry the directory prefix, as watcher
	// events do.
	if abs, err := filepath.Abs(name); err == nil && inside(dir, abs) {
		return abs, nil
	}
	if path := filepath.Join(dir, name); inside(dir, path) {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideDocuments, name)
}

// inside reports whether path lies strictly below dir. Both must be clean
// absolute paths.
func inside(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Chunks loads the named document and returns its chunks without embedding.
func (ix *Indexer) Chunks(ctx context.Context, name string) ([]string, error) {
	path, err := ix.Resolve(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("document %s: %w", name, err)
	}
	doc, err := Load(ctx, path)
	if err != nil {
		return nil, err
	}
	chunks := ix.chunker.Split(doc.Text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s: no chunks produced", name)
	}
	return chunks, nil
}

// Index (re)builds the vector collection for docID from the file at path and
// returns the number of chunks stored. The document row is marked failed on
// any error.
func (ix *Indexer) Index(ctx context.Context, docID, path string) (int, error) {
	if path == "" {
		path = docID
	}
	path, err := ix.Resolve(path)
	if err != nil {
		return 0, err
	}
	if err := ix.docs.UpsertDocument(storage.Document{ID: docID, Path: path, Status: storage.DocumentPending}); err != nil {
		return 0, fmt.Errorf("registering document %s: %w", docID, err)
	}

	n, err := ix.index(ctx, docID, path)
	if err != nil {
		if markErr := ix.docs.MarkFailed(docID, err.Error()); markErr != nil {
			ix.logger.Error("recording index failure", zap.String("document", docID), zap.Error(markErr))
		}
		return 0, err
	}
	if err := ix.docs.MarkIndexed(docID, n); err != nil {
		return n, fmt.Errorf("recording index of %s: %w", docID, err)
	}
	ix.logger.Info("document indexed", zap.String("document", docID), zap.Int("chunks", n))
	return n, nil
}

func (ix *Indexer) index(ctx context.Context, docID, path string) (int, error) {
	chunks, err := ix.Chunks(ctx, path)
	if err != nil {
		return 0, err
	}
	vecs, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %s: %w", docID, err)
	}
	if len(vecs) != len(chunks) {
		return 0, errors.New("embedding count does not match chunk count")
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:         uuid.New().String(),
			Collection: docID,
			ChunkIndex: i,
			TextChunk:  chunk,
			Embedding:  vecs[i],
			CreatedAt:  now,
		}
	}
	if err := ix.vectors.Replace(ctx, docID, records); err != nil {
		return 0, fmt.Errorf("storing vectors for %s: %w", docID, err)
	}
	return len(records), nil
}
