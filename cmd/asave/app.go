package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/agents"
	"github.com/kalambet/asave/internal/composer"
	"github.com/kalambet/asave/internal/config"
	"github.com/kalambet/asave/internal/engine"
	"github.com/kalambet/asave/internal/ingest"
	"github.com/kalambet/asave/internal/pipeline"
	"github.com/kalambet/asave/internal/retrieval"
	"github.com/kalambet/asave/internal/storage"
)

// app holds the components shared by every command that talks to the LLM
// backend or the document store.
type app struct {
	cfg       config.Config
	engine    engine.Engine
	store     *storage.Store
	vectors   *retrieval.SQLiteStore
	retriever *retrieval.Retriever
	indexer   *ingest.Indexer
	service   *pipeline.Service
}

// openApp validates cfg, connects the configured backend and opens storage.
// The caller must Close the returned app.
func openApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.LLM.TimeoutDuration()
	eng, err := engine.Detect(ctx, engine.DetectConfig{
		Provider:     cfg.LLM.Provider,
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Timeout:      timeout,
		EmbedBaseURL: cfg.LLM.EmbedBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting %s backend: %w", cfg.LLM.Provider, err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	embedder := retrieval.NewEmbedder(eng, cfg.LLM.EmbedModel)
	vectors := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(embedder, vectors, logger.Named("retrieval"))
	chunker := ingest.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	indexer := ingest.NewIndexer(chunker, embedder, vectors, store, cfg.Storage.DocumentsDir, logger.Named("ingest"))

	backend := agents.Backend{
		Generator: eng,
		Model:     cfg.LLM.Model,
		Timeout:   timeout,
		Logger:    logger.Named("agents"),
	}
	orch := pipeline.NewOrchestrator(cfg.Retrieval.TopK, composer.New(0), logger.Named("pipeline"))
	svc := pipeline.NewService(backend, retriever, indexer, cfg.Storage.RulesPath, orch).WithKindRecorder(store)

	return &app{
		cfg:       cfg,
		engine:    eng,
		store:     store,
		vectors:   vectors,
		retriever: retriever,
		indexer:   indexer,
		service:   svc,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

// loadStandards binds fas and ss to the service, failing when the FAS cannot
// be loaded.
func (a *app) loadStandards(ctx context.Context, fas, ss string) error {
	printStep("Loading standards (FAS %s%s)...", fas, ssSuffix(ss))
	if !a.service.InitializeComponents(ctx, fas, ss) {
		return fmt.Errorf("could not load FAS document %q; check that it exists in %s", fas, a.cfg.Storage.DocumentsDir)
	}
	sess := a.service.Session()
	if ss != "" && !sess.SSLoaded {
		printWarning("SS document %s could not be loaded; continuing without SS context", ss)
	}
	printSuccess("Standards loaded (%d explicit rules)", sess.Rules)
	return nil
}

func ssSuffix(ss string) string {
	if ss == "" {
		return ""
	}
	return ", SS " + ss
}
