package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/asave/internal/engine"
)

// mockEngine implements engine.Engine for testing.
type mockEngine struct {
	embedFn func(ctx context.Context, model string, text string) ([]float32, error)
}

func (m *mockEngine) Name() string { return "mock" }
func (m *mockEngine) Generate(_ context.Context, _ engine.GenerateRequest) (string, error) {
	return "", errors.New("not implemented")
}
func (m *mockEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return m.embedFn(ctx, model, text)
}
func (m *mockEngine) IsRunning(_ context.Context) bool { return true }

func TestEmbed_PassesModel(t *testing.T) {
	var gotModel string
	e := NewEmbedder(&mockEngine{embedFn: func(_ context.Context, model, _ string) ([]float32, error) {
		gotModel = model
		return []float32{1, 2}, nil
	}}, "text-embedding-004")

	vec, err := e.Embed(context.Background(), "murabaha")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, "text-embedding-004", gotModel)
	assert.Equal(t, "text-embedding-004", e.Model())
}

func TestEmbed_EmptyVectorIsError(t *testing.T) {
	e := NewEmbedder(&mockEngine{embedFn: func(context.Context, string, string) ([]float32, error) {
		return nil, nil
	}}, "m")
	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	e := NewEmbedder(&mockEngine{embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
		return []float32{float32(len(text))}, nil
	}}, "m")

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {3}, {2}}, vecs)
}

func TestEmbedBatch_Empty(t *testing.T) {
	e := NewEmbedder(&mockEngine{}, "m")
	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedBatch_ErrorFailsBatch(t *testing.T) {
	var calls atomic.Int32
	e := NewEmbedder(&mockEngine{embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
		calls.Add(1)
		if strings.HasPrefix(text, "bad") {
			return nil, errors.New("quota exceeded")
		}
		return []float32{1}, nil
	}}, "m")

	_, err := e.EmbedBatch(context.Background(), []string{"ok", "bad chunk", "ok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 1")
	assert.Contains(t, err.Error(), "quota exceeded")
}

// batchEngine embeds in batches and records the size of each request.
type batchEngine struct {
	mockEngine
	mu    sync.Mutex
	sizes []int
	fail  bool
}

func (b *batchEngine) EmbedBatch(_ context.Context, _ string, texts []string) ([][]float32, error) {
	b.mu.Lock()
	b.sizes = append(b.sizes, len(texts))
	b.mu.Unlock()
	if b.fail {
		return nil, errors.New("quota exceeded")
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t))}
	}
	return vecs, nil
}

func TestEmbedBatch_UsesBatchEmbedder(t *testing.T) {
	b := &batchEngine{mockEngine: mockEngine{embedFn: func(context.Context, string, string) ([]float32, error) {
		t.Error("single Embed should not be called")
		return nil, nil
	}}}
	e := NewEmbedder(b, "m")

	texts := make([]string, 70)
	want := make([][]float32, 70)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
		want[i] = []float32{float32(i + 1)}
	}

	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, want, vecs)
	assert.ElementsMatch(t, []int{32, 32, 6}, b.sizes)
}

func TestEmbedBatch_BatchFailure(t *testing.T) {
	b := &batchEngine{fail: true}
	e := NewEmbedder(b, "m")

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}
