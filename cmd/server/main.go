package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"

	"github.com/atlas-ai/knowledge-core/internal/cache"
	"github.com/atlas-ai/knowledge-core/internal/catalog"
	"github.com/atlas-ai/knowledge-core/internal/config"
	"github.com/atlas-ai/knowledge-core/internal/fetch"
	"github.com/atlas-ai/knowledge-core/internal/gcpclient"
	"github.com/atlas-ai/knowledge-core/internal/httpapi"
	"github.com/atlas-ai/knowledge-core/internal/index"
	"github.com/atlas-ai/knowledge-core/internal/ingest"
	"github.com/atlas-ai/knowledge-core/internal/llm"
	"github.com/atlas-ai/knowledge-core/internal/middleware"
	"github.com/atlas-ai/knowledge-core/internal/orchestrate"
	"github.com/atlas-ai/knowledge-core/internal/retrieve"
	"github.com/atlas-ai/knowledge-core/internal/router"
	"github.com/atlas-ai/knowledge-core/internal/store"
	"github.com/atlas-ai/knowledge-core/internal/vectordb"
	"github.com/prometheus/client_golang/prometheus"
)

const Version = "0.1.0"

// firebaseVerifier is filled in once the Firebase Admin SDK is wired; until
// then, internal-auth-only deployments (no end-user traffic) still work.
type firebaseVerifier struct{}

func (firebaseVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	return "", fmt.Errorf("firebase auth not configured")
}

func build(ctx context.Context, cfg *config.Config) (*router.Dependencies, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, closeAll, fmt.Errorf("main: %w", err)
	}
	closers = append(closers, pool.Close)

	agents := store.NewAgentRepo(pool)
	sources := store.NewSourceRepo(pool)
	chats := store.NewChatRepo(pool)

	vdb, err := vectordb.New(vectordb.Config{
		Host: cfg.QdrantURL,
		Port: 6334,
	})
	if err != nil {
		closeAll()
		return nil, closeAll, fmt.Errorf("main: %w", err)
	}
	if cfg.IndexOnStartup {
		if err := vdb.EnsureCollections(ctx, uint64(cfg.EmbeddingDim)); err != nil {
			closeAll()
			return nil, closeAll, fmt.Errorf("main: %w", err)
		}
	}
	closers = append(closers, func() { vdb.Close() })

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	closers = append(closers, func() { redisClient.Close() })
	agentCache := cache.NewAgentCache(redisClient)

	embedAdapter, err := gcpclient.NewEmbeddingAdapter(ctx, cfg.GCPProject, cfg.EmbeddingLocation, cfg.EmbeddingModel)
	if err != nil {
		closeAll()
		return nil, closeAll, fmt.Errorf("main: %w", err)
	}
	embedService := llm.NewEmbeddingService(embedAdapter)

	genAdapter, err := gcpclient.NewGenAIAdapter(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel)
	if err != nil {
		closeAll()
		return nil, closeAll, fmt.Errorf("main: %w", err)
	}
	closers = append(closers, genAdapter.Close)
	genService := llm.NewGenerationService(genAdapter)

	storageAdapter, err := gcpclient.NewStorageAdapter(ctx)
	if err != nil {
		closeAll()
		return nil, closeAll, fmt.Errorf("main: %w", err)
	}
	closers = append(closers, storageAdapter.Close)
	textParser := gcpclient.NewTextParser(storageAdapter)

	docAIAdapter, err := gcpclient.NewDocumentAIAdapter(ctx, cfg.GCPProject, cfg.DocAILocation)
	if err != nil {
		closeAll()
		return nil, closeAll, fmt.Errorf("main: %w", err)
	}
	closers = append(closers, docAIAdapter.Close)
	fileExtractor := fetch.NewFileExtractor(docAIAdapter, textParser, cfg.DocAIProcessorID)

	browser, err := fetch.NewBrowserFetcher(time.Duration(cfg.FetchTimeout) * time.Second)
	if err != nil {
		closeAll()
		return nil, closeAll, fmt.Errorf("main: %w", err)
	}

	catalogSvc := catalog.NewService(genService)
	retriever := retrieve.New(vdb, embedService)
	indexer := index.New(vdb, embedService, catalogSvc, cfg.ChunkSize, cfg.ChunkOverlap)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCPProject)
	if err != nil {
		closeAll()
		return nil, closeAll, fmt.Errorf("main: %w", err)
	}
	closers = append(closers, func() { pubsubClient.Close() })
	topic := pubsubClient.Topic(cfg.PubSubTopicIngest)
	publisher := ingest.NewPublisher(topic)

	orchestrator := orchestrate.New(agentCache, agents, chats, retriever, genService, genService)

	var authVerifier middleware.TokenVerifier = firebaseVerifier{}

	metricsReg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(metricsReg)

	generalLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{MaxRequests: 120, Window: time.Minute})
	chatLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{MaxRequests: 10, Window: time.Minute})
	closers = append(closers, generalLimiter.Stop, chatLimiter.Stop)

	deps := &router.Dependencies{
		DB:                 pool,
		Version:            Version,
		FrontendURL:        cfg.FrontendURL,
		Metrics:            metrics,
		MetricsReg:         metricsReg,
		AuthVerifier:       authVerifier,
		InternalAuthSecret: cfg.InternalAuthSecret,
		Build: httpapi.BuildDeps{
			Agents:      agents,
			Sources:     sources,
			Dispatcher:  publisher,
			URLs:        httpapi.BatchURLFetcher{Browser: browser},
			Files:       fileExtractor,
			Concurrency: cfg.FetchConcurrency,
		},
		Chat:        httpapi.ChatDeps{Orchestrator: httpapi.OrchestratorAdapter{Orchestrator: orchestrator}},
		Delete:      httpapi.DeleteDeps{Sources: sources, Vectors: indexer},
		URLs:        sources,
		Files:       sources,
		CustomTexts: sources,
		QAPairs:     sources,
		Rotator:     orchestrator,

		GeneralRateLimiter: generalLimiter,
		ChatRateLimiter:    chatLimiter,
	}

	return deps, closeAll, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("main: %w", err)
	}

	ctx := context.Background()
	deps, closeAll, err := build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("main: %w", err)
	}
	defer closeAll()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router.New(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // chat streams hold the connection open; per-route timeouts apply instead
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("atlas-ai knowledge-core starting", "version", Version, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received signal, shutting down gracefully", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
