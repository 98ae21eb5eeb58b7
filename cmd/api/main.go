package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conversia-ai/conversia/internal/agent"
	"github.com/conversia-ai/conversia/internal/api"
	"github.com/conversia-ai/conversia/internal/cache"
	"github.com/conversia-ai/conversia/internal/config"
	"github.com/conversia-ai/conversia/internal/embedding"
	"github.com/conversia-ai/conversia/internal/llm"
	"github.com/conversia-ai/conversia/internal/queue"
	"github.com/conversia-ai/conversia/internal/vectordb"
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

	rdb, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		logger.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	chatClient, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey(),
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		logger.Error("failed to build llm client", "error", err)
		os.Exit(1)
	}
	retryPolicy := llm.DefaultRetryPolicy()
	retryPolicy.MaxRetries = cfg.LLM.MaxRetries
	chatClient = llm.WithRetry(chatClient, retryPolicy)

	embedder := llm.NewOpenAIClient(cfg.LLM.OpenAIKey, cfg.LLM.BaseURL)
	embeddings := embedding.NewService(embedder, cfg.LLM.EmbedModel, cache.NewCache(rdb))

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

	conversationAgent := agent.New(chatClient, embeddings, store, logger, agent.Config{
		Model:       cfg.Agent.Model,
		Temperature: cfg.Agent.Temperature,
		MaxChunks:   cfg.Agent.MaxChunks,
	})

	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	router := api.NewRouter(cfg, rdb, store, embeddings, conversationAgent, queueClient)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting API server", "addr", cfg.Addr(), "vector_db", cfg.VectorDB.Type, "llm", cfg.LLM.Provider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
	}
	logger.Info("server stopped")
}
