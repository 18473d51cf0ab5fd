package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stocklens/stocklens-backend/config"
	"github.com/stocklens/stocklens-backend/db"
	"github.com/stocklens/stocklens-backend/handlers"
	"github.com/stocklens/stocklens-backend/internal/ai"
	"github.com/stocklens/stocklens-backend/internal/cache"
	"github.com/stocklens/stocklens-backend/internal/matcher"
	"github.com/stocklens/stocklens-backend/internal/pipeline"
	"github.com/stocklens/stocklens-backend/internal/storage"
	"github.com/stocklens/stocklens-backend/internal/store"
	"github.com/stocklens/stocklens-backend/internal/store/postgres"
	"github.com/stocklens/stocklens-backend/logger"
	"github.com/stocklens/stocklens-backend/router"
	"github.com/stocklens/stocklens-backend/services"
)

func main() {
	logger.InitLogger()
	defer logger.Close()
	log := logger.GetLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(cfg.Database.URL()); err != nil {
		log.Fatalw("Failed to run migrations", "error", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer pool.Close()

	redisOpts := &redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}
	if cfg.Redis.UseTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The embedding cache degrades to misses without Redis; startup
		// continues so a cache outage cannot take the API down.
		log.Warnw("Redis unreachable, embedding cache disabled until it recovers", "error", err)
	}

	gemini, err := ai.NewGeminiClient(ctx, cfg.AI)
	if err != nil {
		log.Fatalw("Failed to create Gemini client", "error", err)
	}
	defer gemini.Close()

	embeddingCache := cache.NewEmbeddingCache(redisClient, time.Duration(cfg.AI.CacheTTLHours)*time.Hour)
	embedder := ai.NewCachingEmbedder(gemini, embeddingCache, cfg.AI.EmbeddingDimension)

	var images storage.ImageStore
	switch cfg.Storage.Backend {
	case "s3":
		images, err = storage.NewS3Store(ctx, cfg.Storage)
	default:
		images, err = storage.NewLocalStore(cfg.Storage.LocalDir)
	}
	if err != nil {
		log.Fatalw("Failed to initialize image storage", "error", err, "backend", cfg.Storage.Backend)
	}

	var (
		productStore     store.ProductStore     = postgres.NewProductStore(pool)
		receiptStore     store.ReceiptStore     = postgres.NewReceiptStore(pool)
		transactionStore store.TransactionStore = postgres.NewTransactionStore(pool)
	)

	workerPool := services.NewWorkerPool(cfg.WorkerPool)
	workerPool.Start()

	productMatcher := matcher.New(embedder, productStore, cfg.Match.SimilarityFloor)
	pipelineSvc := pipeline.NewService(
		receiptStore,
		transactionStore,
		images,
		gemini,
		productMatcher,
		gemini,
		workerPool,
	)

	engine := router.New(router.Dependencies{
		Config:      cfg,
		Receipt:     handlers.NewReceiptHandler(pipelineSvc, images, cfg.Storage),
		Transaction: handlers.NewTransactionHandler(transactionStore),
		Product:     handlers.NewProductHandler(productStore, embedder),
		Health:      handlers.NewHealthHandler(pool, redisClient, cfg.Server.Version),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("Server listening", "port", cfg.Server.Port, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownTimeout := time.Duration(cfg.WorkerPool.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP server shutdown incomplete", "error", err)
	}
	// Drain in-flight pipeline runs before closing the stores they write to.
	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		log.Warnw("Worker pool shutdown incomplete", "error", err)
	}

	log.Info("Shutdown complete")
	os.Exit(0)
}
