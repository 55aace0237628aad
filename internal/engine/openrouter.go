package engine

import (
	"context"

	"github.com/kalambet/asave/internal/proxy"
)

// OpenRouterEngine generates text through the OpenRouter gateway. OpenRouter
// serves no embedding endpoint, so embeddings are delegated to embedder when
// one is set.
type OpenRouterEngine struct {
	client   *proxy.Client
	embedder Engine
}

// NewOpenRouterEngine creates an engine for the gateway at baseURL (empty
// means the public endpoint). embedder may be nil.
func NewOpenRouterEngine(apiKey, baseURL string, embedder Engine) *OpenRouterEngine {
	return &OpenRouterEngine{
		client:   proxy.NewClientWithBaseURL(apiKey, baseURL),
		embedder: embedder,
	}
}

func (e *OpenRouterEngine) Name() string { return "openrouter" }

func (e *OpenRouterEngine) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	temp := req.Temperature
	return e.client.Complete(ctx, proxy.CompletionRequest{
		Model:       req.Model,
		Messages:    []proxy.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
}

func (e *OpenRouterEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	if e.embedder == nil {
		return nil, ErrEmbeddingUnsupported
	}
	return e.embedder.Embed(ctx, model, text)
}

// EmbedBatch delegates to the embedder, one text at a time when it cannot
// batch.
func (e *OpenRouterEngine) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if e.embedder == nil {
		return nil, ErrEmbeddingUnsupported
	}
	if be, ok := e.embedder.(BatchEmbedder); ok {
		return be.EmbedBatch(ctx, model, texts)
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.embedder.Embed(ctx, model, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (e *OpenRouterEngine) IsRunning(ctx context.Context) bool {
	_, err := e.client.ListModels(ctx)
	return err == nil
}
