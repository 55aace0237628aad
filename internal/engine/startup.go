package engine

import (
	"context"
	"fmt"
	"io"
	"time"
)

// EnsureReady checks that the Engine is reachable. Engines that manage local
// weights get missing models pulled, with progress written to w. The
// generation model is then warmed up; a failed warm-up is reported but not
// fatal.
func EnsureReady(ctx context.Context, e Engine, genModel, embedModel string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("%s backend is not reachable; check llm.base_url and credentials", e.Name())
	}

	if mm, ok := e.(ModelManager); ok {
		models := make([]string, 0, 2)
		if genModel != "" {
			models = append(models, genModel)
		}
		if embedModel != "" && embedModel != genModel {
			models = append(models, embedModel)
		}

		for _, model := range models {
			if mm.HasModel(ctx, model) {
				fmt.Fprintf(w, "model %s: ready\n", model)
				continue
			}

			fmt.Fprintf(w, "model %s: pulling...\n", model)
			err := mm.PullModel(ctx, model, func(p PullProgress) {
				if p.Total > 0 {
					pct := float64(p.Completed) / float64(p.Total) * 100
					fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
				} else {
					fmt.Fprintf(w, "  %s\n", p.Status)
				}
			})
			if err != nil {
				return fmt.Errorf("pulling model %s: %w", model, err)
			}
			fmt.Fprintf(w, "model %s: ready\n", model)
		}
	}

	if genModel == "" {
		return nil
	}
	fmt.Fprintf(w, "model %s: warming up...\n", genModel)
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := e.Generate(warmCtx, GenerateRequest{Model: genModel, Prompt: "ping"}); err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", genModel, err)
	} else {
		fmt.Fprintf(w, "model %s: warm\n", genModel)
	}
	return nil
}
