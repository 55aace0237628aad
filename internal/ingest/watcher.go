package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = time.Second

// Watcher enqueues index jobs for supported files created or modified in a
// directory. Bursts of events for one file within the debounce window produce
// a single job.
type Watcher struct {
	dir      string
	queue    JobEnqueuer
	debounce time.Duration
	logger   *zap.Logger
}

func NewWatcher(dir string, queue JobEnqueuer, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dir: dir, queue: queue, debounce: debounce, logger: logger}
}

// Run watches the directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching documents", zap.String("dir", w.dir))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !Supported(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				pending[ev.Name] = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case now := <-ticker.C:
			for path, seen := range pending {
				if now.Sub(seen) < w.debounce {
					continue
				}
				delete(pending, path)
				w.enqueue(path)
			}
		}
	}
}

func (w *Watcher) enqueue(path string) {
	docID := DocumentID(path)
	jobID, err := EnqueueIndex(w.queue, docID, path)
	if err != nil {
		w.logger.Warn("enqueue failed", zap.String("document", docID), zap.Error(err))
		return
	}
	w.logger.Info("document queued for indexing", zap.String("document", docID), zap.String("job_id", jobID))
}
