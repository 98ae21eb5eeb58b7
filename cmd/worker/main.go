package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/conversia-ai/conversia/internal/cache"
	"github.com/conversia-ai/conversia/internal/config"
	"github.com/conversia-ai/conversia/internal/embedding"
	"github.com/conversia-ai/conversia/internal/llm"
	"github.com/conversia-ai/conversia/internal/queue"
	"github.com/conversia-ai/conversia/internal/queue/workers"
	"github.com/conversia-ai/conversia/internal/vectordb"
	"github.com/conversia-ai/conversia/pkg/chunker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Embeddings always go through the OpenAI API, regardless of the chat
	// provider.
	embedder := llm.NewOpenAIClient(cfg.LLM.OpenAIKey, cfg.LLM.BaseURL)

	redisClient, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	embeddings := embedding.NewService(embedder, cfg.LLM.EmbedModel, cache.NewCache(redisClient))

	store, err := vectordb.New(vectordb.Config{
		Type:        cfg.VectorDB.Type,
		Addr:        cfg.VectorDB.Addr,
		APIKey:      cfg.VectorDB.APIKey,
		StoragePath: cfg.VectorDB.StoragePath,
		DatabaseURL: cfg.VectorDB.DatabaseURL,
	})
	if err != nil {
		logger.Error("failed to build vector store", "error", err)
		os.Exit(1)
	}
	if err := store.Connect(ctx); err != nil {
		logger.Error("failed to connect to vector store", "type", cfg.VectorDB.Type, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	ingest := workers.NewIngestWorker(embeddings, store, chunker.Options{
		Size:    cfg.Chunker.Size,
		Overlap: cfg.Chunker.Overlap,
	}, logger)

	mux := asynq.NewServeMux()
	mux.Handle(queue.TypeDocumentIngest, asynq.HandlerFunc(ingest.ProcessTask))

	logger.Info("starting ingest worker", "concurrency", 10, "vector_db", cfg.VectorDB.Type)
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}
}
