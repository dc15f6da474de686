// Command backfill embeds every chunk that is missing its vector, across
// all businesses. Run it after provider outages or interrupted ingestions.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-agent/backend/internal/chunker"
	"github.com/helpdesk-agent/backend/internal/ingestion"
	"github.com/helpdesk-agent/backend/internal/llm"
	"github.com/helpdesk-agent/backend/internal/storage/sqlite"
	"github.com/helpdesk-agent/backend/internal/vector/milvus"
	"github.com/helpdesk-agent/backend/pkg/config"
	appLogger "github.com/helpdesk-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.CreateCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.EmbeddingDim,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	textChunker := chunker.New(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap, cfg.Ingestion.MinChunkSize)
	pipeline := ingestion.NewPipeline(sqliteClient, milvusClient, llmClient, textChunker)

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	stats, err := pipeline.Backfill(ctx)
	if err != nil {
		appLogger.Fatal("Backfill failed", zap.Error(err))
	}

	fmt.Printf("Backfill complete: %d total, %d succeeded, %d failed, %d skipped\n",
		stats.TotalChunks, stats.Succeeded, stats.Failed, stats.Skipped)

	if stats.Failed > 0 {
		os.Exit(1)
	}
}
