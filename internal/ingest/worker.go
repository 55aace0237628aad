package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/storage"
)

// JobTypeIndex is the job type consumed by Worker.
const JobTypeIndex = "index_document"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// JobEnqueuer adds jobs to the queue.
type JobEnqueuer interface {
	EnqueueJob(job storage.Job) error
}

// DocumentIndexer indexes one document.
type DocumentIndexer interface {
	Index(ctx context.Context, docID, path string) (int, error)
}

type indexPayload struct {
	DocumentID string `json:"document_id"`
	Path       string `json:"path"`
}

// EnqueueIndex queues an index_document job for the file at path and returns
// the job id.
func EnqueueIndex(q JobEnqueuer, docID, path string) (string, error) {
	payload, err := json.Marshal(indexPayload{DocumentID: docID, Path: path})
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if err := q.EnqueueJob(storage.Job{ID: id, Type: JobTypeIndex, PayloadJSON: string(payload)}); err != nil {
		return "", fmt.Errorf("enqueueing index of %s: %w", docID, err)
	}
	return id, nil
}

// Worker processes index_document jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	indexer DocumentIndexer
	poll    time.Duration
	logger  *zap.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, indexer DocumentIndexer, pollInterval time.Duration, logger *zap.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:   store,
		indexer: indexer,
		poll:    pollInterval,
		logger:  logger,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", zap.Error(err))
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single index_document job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeIndex})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", zap.String("job_id", job.ID), zap.Error(err))
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload indexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.DocumentID == "" {
		return fmt.Errorf("payload has no document_id")
	}
	if _, err := w.indexer.Index(ctx, payload.DocumentID, payload.Path); err != nil {
		return fmt.Errorf("indexing %s: %w", payload.DocumentID, err)
	}
	return nil
}
