package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Milvus    MilvusConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Email     EmailConfig
	Retrieval RetrievalConfig
	Ingestion IngestionConfig
	Limits    LimitsConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	EmbeddingModel string
	EmbeddingDim   int
}

type EmailConfig struct {
	APIKey       string
	FromAddress  string
	DashboardURL string
}

type RetrievalConfig struct {
	SimilarityFloor  float64
	MatchCount       int
	HandoffThreshold float64
}

type IngestionConfig struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

type LimitsConfig struct {
	MessageContentMax    int
	SourceNameMax        int
	SourceContentMax     int
	ConversationTitleMax int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/helpdesk-agent")

	viper.SetEnvPrefix("HELPDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/helpdesk.db")

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "knowledge_chunks")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.maxTokens", 500)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 1536)

	viper.SetDefault("email.fromAddress", "AI Support <support@notifications.example.com>")
	viper.SetDefault("email.dashboardURL", "http://localhost:3000")

	viper.SetDefault("retrieval.similarityFloor", 0.5)
	viper.SetDefault("retrieval.matchCount", 5)
	viper.SetDefault("retrieval.handoffThreshold", 0.6)

	viper.SetDefault("ingestion.chunkSize", 800)
	viper.SetDefault("ingestion.chunkOverlap", 100)
	viper.SetDefault("ingestion.minChunkSize", 50)

	viper.SetDefault("limits.messageContentMax", 10000)
	viper.SetDefault("limits.sourceNameMax", 200)
	viper.SetDefault("limits.sourceContentMax", 2000000)
	viper.SetDefault("limits.conversationTitleMax", 200)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
