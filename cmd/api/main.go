package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/helpdesk-agent/backend/internal/api/handlers"
	"github.com/helpdesk-agent/backend/internal/cache/redis"
	"github.com/helpdesk-agent/backend/internal/chunker"
	"github.com/helpdesk-agent/backend/internal/email"
	"github.com/helpdesk-agent/backend/internal/escalation"
	"github.com/helpdesk-agent/backend/internal/ingestion"
	"github.com/helpdesk-agent/backend/internal/llm"
	"github.com/helpdesk-agent/backend/internal/metrics"
	"github.com/helpdesk-agent/backend/internal/middleware/ratelimit"
	"github.com/helpdesk-agent/backend/internal/middleware/security"
	"github.com/helpdesk-agent/backend/internal/middleware/validation"
	"github.com/helpdesk-agent/backend/internal/response"
	"github.com/helpdesk-agent/backend/internal/retrieval"
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

	appLogger.Info("Starting helpdesk agent API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

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

	// The embedding cache is optional; without Redis the engine just embeds
	// every query.
	var embeddingCache retrieval.EmbeddingCache
	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		embeddingCache = redisClient
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.EmbeddingDim,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	emailClient := email.NewClient(cfg.Email.APIKey, cfg.Email.FromAddress, cfg.Email.DashboardURL)

	textChunker := chunker.New(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap, cfg.Ingestion.MinChunkSize)
	pipeline := ingestion.NewPipeline(sqliteClient, milvusClient, llmClient, textChunker)

	retriever := retrieval.NewRetriever(
		sqliteClient,
		milvusClient,
		llmClient,
		embeddingCache,
		cfg.Retrieval.SimilarityFloor,
		cfg.Retrieval.MatchCount,
	)
	composer := response.NewComposer(retriever, llmClient, cfg.Retrieval.HandoffThreshold)
	coordinator := escalation.NewCoordinator(sqliteClient, composer, emailClient)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Visitor-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(rateLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		MaxMessageLength:    cfg.Limits.MessageContentMax,
		MaxSourceNameLength: cfg.Limits.SourceNameMax,
		MaxSourceContent:    cfg.Limits.SourceContentMax,
		Logger:              appLogger.GetLogger(),
	}))

	knowledgeHandler := handlers.NewKnowledgeHandler(sqliteClient, milvusClient, pipeline)
	chatHandler := handlers.NewChatHandler(coordinator)
	conversationHandler := handlers.NewConversationHandler(sqliteClient, coordinator)
	wsHandler := handlers.NewWebSocketHandler(coordinator, cfg.Limits.MessageContentMax)

	api := app.Group("/api/v1")

	api.Post("/knowledge/sources", knowledgeHandler.AddSource)
	api.Get("/knowledge/sources", knowledgeHandler.ListSources)
	api.Delete("/knowledge/sources/:id", knowledgeHandler.DeleteSource)
	api.Get("/knowledge/status", knowledgeHandler.Status)

	api.Post("/chat/messages", chatHandler.HandleVisitorMessage)

	api.Get("/conversations/:id/messages", conversationHandler.GetMessages)
	api.Post("/conversations/:id/messages", conversationHandler.HumanReply)
	api.Post("/conversations/:id/typing", conversationHandler.SetTyping)
	api.Post("/conversations/:id/close", conversationHandler.Close)

	api.Get("/settings", conversationHandler.GetSettings)
	api.Put("/settings", conversationHandler.UpdateSettings)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/widget", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
