package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kalambet/asave/internal/retrieval"
	"github.com/kalambet/asave/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockIndexer struct {
	mu      sync.Mutex
	indexed []indexPayload
	indexFn func(ctx context.Context, docID, path string) (int, error)
}

func (m *mockIndexer) Index(ctx context.Context, docID, path string) (int, error) {
	if m.indexFn != nil {
		return m.indexFn(ctx, docID, path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed = append(m.indexed, indexPayload{DocumentID: docID, Path: path})
	return 1, nil
}

type mockBatchEmbedder struct {
	err error
}

func (m *mockBatchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i + 1), 1, 0}
	}
	return out, nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueTestJob(t *testing.T, store *storage.Store, jobID, docID string) {
	t.Helper()
	payload, _ := json.Marshal(indexPayload{DocumentID: docID, Path: "/docs/" + docID})
	job := storage.Job{
		ID:          jobID,
		Type:        JobTypeIndex,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

// resetRunAfter sets run_after to now so the job is immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func jobStatus(t *testing.T, store *storage.Store, jobID string) (string, int) {
	t.Helper()
	var status string
	var attempts int
	err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = ?`, jobID).Scan(&status, &attempts)
	require.NoError(t, err)
	return status, attempts
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "job-1", "SS_8.pdf")

	idx := &mockIndexer{}
	w := NewWorker(store, idx, 0, nil)

	didWork, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, didWork)

	require.Len(t, idx.indexed, 1)
	assert.Equal(t, indexPayload{DocumentID: "SS_8.pdf", Path: "/docs/SS_8.pdf"}, idx.indexed[0])

	status, _ := jobStatus(t, store, "job-1")
	assert.Equal(t, "completed", status)
}

func TestWorker_NoJob(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockIndexer{}, 0, nil)

	didWork, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, didWork)
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "job-r", "FAS_4.pdf")

	var calls atomic.Int32
	w := NewWorker(store, &mockIndexer{
		indexFn: func(_ context.Context, _, _ string) (int, error) {
			n := calls.Add(1)
			if n <= 2 {
				return 0, fmt.Errorf("transient error %d", n)
			}
			return 3, nil
		},
	}, 0, nil)
	ctx := context.Background()

	didWork, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, didWork)
	status, attempts := jobStatus(t, store, "job-r")
	assert.Equal(t, "pending", status)
	assert.Equal(t, 1, attempts)

	resetRunAfter(t, store, "job-r")
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	_, attempts = jobStatus(t, store, "job-r")
	assert.Equal(t, 2, attempts)

	resetRunAfter(t, store, "job-r")
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	status, _ = jobStatus(t, store, "job-r")
	assert.Equal(t, "completed", status)
}

func TestWorker_BadPayloadFails(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.EnqueueJob(storage.Job{ID: "job-bad", Type: JobTypeIndex, PayloadJSON: `{}`, MaxAttempts: 1}))

	w := NewWorker(store, &mockIndexer{}, 0, nil)
	didWork, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, didWork)

	status, _ := jobStatus(t, store, "job-bad")
	assert.Equal(t, "failed", status)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockIndexer{}, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEnqueueIndex(t *testing.T) {
	store := openTestStore(t)

	id, err := EnqueueIndex(store, "SS_8.pdf", "/docs/SS_8.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	job, err := store.ClaimNextJob([]string{JobTypeIndex})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.JSONEq(t, `{"document_id":"SS_8.pdf","path":"/docs/SS_8.pdf"}`, job.PayloadJSON)
}

func TestIndexer_IndexStoresChunks(t *testing.T) {
	store := openTestStore(t)
	vectors := retrieval.NewSQLiteStore(store.DB())
	dir := t.TempDir()
	path := filepath.Join(dir, "SS_8.txt")
	require.NoError(t, os.WriteFile(path, []byte("First paragraph on Murabaha.\n\nSecond paragraph on ownership."), 0o644))

	ix := NewIndexer(NewChunker(40, 0), &mockBatchEmbedder{}, vectors, store, dir, nil)
	n, err := ix.Index(context.Background(), "SS_8.txt", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := vectors.Count(context.Background(), "SS_8.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	doc, err := store.GetDocument("SS_8.txt")
	require.NoError(t, err)
	assert.Equal(t, storage.DocumentIndexed, doc.Status)
	assert.Equal(t, 2, doc.ChunkCount)
	assert.Equal(t, path, doc.Path)
}

func TestIndexer_IndexRecordsFailure(t *testing.T) {
	store := openTestStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "FAS_4.txt")
	require.NoError(t, os.WriteFile(path, []byte("Some text."), 0o644))

	ix := NewIndexer(nil, &mockBatchEmbedder{err: errors.New("backend down")}, retrieval.NewSQLiteStore(store.DB()), store, dir, nil)
	_, err := ix.Index(context.Background(), "FAS_4.txt", path)
	require.Error(t, err)

	doc, err := store.GetDocument("FAS_4.txt")
	require.NoError(t, err)
	assert.Equal(t, storage.DocumentFailed, doc.Status)
	assert.Contains(t, doc.LastError, "backend down")
}

func TestIndexer_ChunksMissingFile(t *testing.T) {
	ix := NewIndexer(nil, &mockBatchEmbedder{}, nil, nil, t.TempDir(), nil)
	_, err := ix.Chunks(context.Background(), "absent.pdf")
	assert.Error(t, err)
}

func TestIndexer_Resolve(t *testing.T) {
	ix := NewIndexer(nil, nil, nil, nil, "/srv/docs", nil)

	path, err := ix.Resolve("SS_8.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/srv/docs/SS_8.pdf", path)

	path, err = ix.Resolve("/abs/SS_8.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/abs/SS_8.pdf", path)
}

func TestIndexer_ConfinedResolve(t *testing.T) {
	ix := NewIndexer(nil, nil, nil, nil, "/srv/docs", nil).Confine()

	tests := []struct {
		name    string
		want    string
		outside bool
	}{
		{name: "SS_8.pdf", want: "/srv/docs/SS_8.pdf"},
		{name: "ss/SS_8.pdf", want: "/srv/docs/ss/SS_8.pdf"},
		{name: "/srv/docs/FAS_4.html", want: "/srv/docs/FAS_4.html"},
		{name: "/etc/notes.txt", outside: true},
		{name: "../secrets.md", outside: true},
		{name: "../docs-old/x.pdf", outside: true},
		{name: ".", outside: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ix.Resolve(tt.name)
			if tt.outside {
				assert.ErrorIs(t, err, ErrOutsideDocuments)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIndexer_ConfinedAcceptsDirectoryPrefixedNames(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)
	ix := NewIndexer(nil, nil, nil, nil, "docs", nil).Confine()

	path, err := ix.Resolve(filepath.Join("docs", "SS_8.pdf"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "docs", "SS_8.pdf"), path)

	path, err = ix.Resolve("FAS_4.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "docs", "FAS_4.pdf"), path)
}

func TestIndexer_ConfinedRejectsOutsideFile(t *testing.T) {
	store := openTestStore(t)
	outside := filepath.Join(t.TempDir(), "private.txt")
	require.NoError(t, os.WriteFile(outside, []byte("Not a standard."), 0o644))

	ix := NewIndexer(nil, &mockBatchEmbedder{}, retrieval.NewSQLiteStore(store.DB()), store, t.TempDir(), nil).Confine()

	_, err := ix.Chunks(context.Background(), outside)
	assert.ErrorIs(t, err, ErrOutsideDocuments)

	_, err = ix.Index(context.Background(), "private.txt", outside)
	assert.ErrorIs(t, err, ErrOutsideDocuments)
	_, err = store.GetDocument("private.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
