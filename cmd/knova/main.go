package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"knova/internal/api"
	"knova/internal/api/handlers"
	"knova/internal/chunker"
	"knova/internal/embedding"
	"knova/internal/loader"
	"knova/internal/notify"
	"knova/internal/repository"
	"knova/internal/service"
	"knova/internal/vectorstore"
	"knova/pkg/auth"
	"knova/pkg/config"
	"knova/pkg/logger"
	"knova/pkg/postgres"
	"knova/pkg/redis"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting knova service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Redis accelerates the quota ledger; the service runs without it.
	cache, err := redis.NewClient(ctx, &cfg.Redis, appLogger)
	if err != nil {
		appLogger.Warn("Redis unavailable, quota runs on Postgres alone", zap.Error(err))
		cache = nil
	} else {
		defer cache.Close()
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db, appLogger)
	kbRepo := repository.NewKnowledgeBaseRepository(db, appLogger)
	docRepo := repository.NewDocumentRepository(db, appLogger)
	quotaRepo := repository.NewQuotaRepository(db, appLogger)

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)

	// Ingestion building blocks
	vectors := vectorstore.NewManager(db, appLogger)
	registry := loader.NewRegistry()
	splitter := chunker.New(cfg.Chunker.TargetSize, cfg.Chunker.Overlap)
	embedder := selectEmbedder(cfg, appLogger)
	hub := notify.NewHub()

	// Initialize services
	authService := service.NewAuthService(userRepo, quotaRepo, jwtManager, cfg.Quota.DefaultMonthly, appLogger)
	quotaService := service.NewQuotaService(quotaRepo, cache, appLogger)

	llmService, err := service.NewLLMService(&cfg.GigaChat, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	ingestService := service.NewIngestService(docRepo, kbRepo, registry, splitter, embedder, vectors, hub,
		cfg.Ingest.Workers, cfg.Ingest.QueueSize, appLogger)
	retrievalService := service.NewRetrievalService(embedder, vectors, appLogger)
	generationService := service.NewGenerationService(retrievalService, quotaService, llmService, cfg.Retrieval.TopK, appLogger)

	knowledgeService := service.NewKnowledgeService(kbRepo, docRepo, vectors, appLogger)
	docService := service.NewDocumentService(docRepo, kbRepo, vectors, ingestService, loader.ResolveType,
		cfg.Server.UploadDir, appLogger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, appLogger)
	knowledgeHandler := handlers.NewKnowledgeHandler(knowledgeService, appLogger)
	docHandler := handlers.NewDocumentHandler(docService, appLogger)
	queryHandler := handlers.NewQueryHandler(generationService, knowledgeService, appLogger)
	quotaHandler := handlers.NewQuotaHandler(quotaService, appLogger)
	eventsHandler := handlers.NewEventsHandler(hub, appLogger)

	// Setup router
	app := api.SetupRouter(authHandler, knowledgeHandler, docHandler, queryHandler,
		quotaHandler, eventsHandler, jwtManager, appLogger)

	// Start the ingestion worker pool
	workerCtx, stopWorkers := context.WithCancel(ctx)
	workersDone := make(chan struct{})
	go func() {
		ingestService.Run(workerCtx)
		close(workersDone)
	}()

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}

	// In-flight ingestion runs finish before the process exits.
	stopWorkers()
	<-workersDone
	appLogger.Info("Shutdown complete")
}

// selectEmbedder wires the remote embedding backend, or the deterministic
// local fallback when no backend is configured and the environment permits
// it. Production without a backend is a configuration error.
func selectEmbedder(cfg *config.Config, appLogger *zap.Logger) embedding.Embedder {
	if cfg.Embedding.BaseURL != "" {
		appLogger.Info("Using remote embedding backend",
			zap.String("base_url", cfg.Embedding.BaseURL),
			zap.String("model", cfg.Embedding.Model),
		)
		return embedding.NewRemoteEmbedder(&cfg.Embedding, appLogger)
	}

	if !cfg.Embedding.AllowFallback || cfg.Env == "production" {
		appLogger.Fatal("No embedding backend configured",
			zap.String("env", cfg.Env),
			zap.Bool("allow_fallback", cfg.Embedding.AllowFallback),
		)
	}

	appLogger.Warn("Using deterministic hash embedder, retrieval quality is for development only",
		zap.Int("dim", cfg.Embedding.FallbackDim),
	)
	return embedding.NewHashEmbedder(cfg.Embedding.FallbackDim)
}
