package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"

	"github.com/atlas-ai/knowledge-core/internal/catalog"
	"github.com/atlas-ai/knowledge-core/internal/config"
	"github.com/atlas-ai/knowledge-core/internal/gcpclient"
	"github.com/atlas-ai/knowledge-core/internal/index"
	"github.com/atlas-ai/knowledge-core/internal/ingest"
	"github.com/atlas-ai/knowledge-core/internal/llm"
	"github.com/atlas-ai/knowledge-core/internal/store"
	"github.com/atlas-ai/knowledge-core/internal/vectordb"
)

// The ingest worker is the async half of ingestion: build-agent/update-agent
// already fetched and extracted each source's text and published it, so
// this binary only chunks, embeds, and upserts.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ingest-worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("ingest-worker: %w", err)
	}
	defer pool.Close()
	sources := store.NewSourceRepo(pool)

	vdb, err := vectordb.New(vectordb.Config{Host: cfg.QdrantURL, Port: 6334})
	if err != nil {
		return fmt.Errorf("ingest-worker: %w", err)
	}
	defer vdb.Close()

	embedAdapter, err := gcpclient.NewEmbeddingAdapter(ctx, cfg.GCPProject, cfg.EmbeddingLocation, cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("ingest-worker: %w", err)
	}
	embedService := llm.NewEmbeddingService(embedAdapter)

	genAdapter, err := gcpclient.NewGenAIAdapter(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel)
	if err != nil {
		return fmt.Errorf("ingest-worker: %w", err)
	}
	defer genAdapter.Close()
	genService := llm.NewGenerationService(genAdapter)
	catalogSvc := catalog.NewService(genService)

	indexer := index.New(vdb, embedService, catalogSvc, cfg.ChunkSize, cfg.ChunkOverlap)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCPProject)
	if err != nil {
		return fmt.Errorf("ingest-worker: %w", err)
	}
	defer pubsubClient.Close()
	sub := pubsubClient.Subscription(cfg.PubSubSubscriptionIngest)

	worker := ingest.NewWorker(sub, indexer, sources)

	slog.Info("ingest-worker starting", "subscription", cfg.PubSubSubscriptionIngest)
	if err := worker.Run(ctx); err != nil {
		return fmt.Errorf("ingest-worker: %w", err)
	}
	slog.Info("ingest-worker stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
