package engine

import (
	"context"
	"errors"
)

// ErrEmbeddingUnsupported is returned by backends that cannot produce embeddings.
var ErrEmbeddingUnsupported = errors.New("embeddings not supported by this backend")

// GenerateRequest is a single-turn, non-streaming generation request.
type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature float32
}

// Engine abstracts a text-generation backend (Gemini, Ollama or an
// OpenAI-compatible gateway). Agents and retrieval depend on this interface
// instead of a concrete client.
type Engine interface {
	// Name identifies the backend in logs and status output.
	Name() string

	// Generate sends one prompt and returns the model's full reply.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Embed returns the embedding vector for text using model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool
}

// BatchEmbedder is implemented by engines that embed many texts per request.
// Vectors are returned in input order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// ModelManager is implemented by engines that host model weights locally and
// can download missing ones.
type ModelManager interface {
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
