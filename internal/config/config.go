package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Warehouse WarehouseConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Rerank    RerankConfig
	Ingest    IngestConfig
	Search    SearchConfig
	Storage   StorageConfig
	Events    EventsConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// WarehouseConfig points at the analytical database that SQL-generating
// strategies execute against. It may be the same instance as Database.
type WarehouseConfig struct {
	URL          string
	QueryTimeout int // seconds
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
	EmbeddingModel   string
}

type RerankConfig struct {
	APIKey    string
	Endpoint  string
	Model     string
	TimeoutMs int
	TopN      int
}

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	RowBatchSize int
}

type SearchConfig struct {
	TopK              int
	RetrieveTimeoutMs int
	// AggregationKeywords overrides the built-in classifier keyword set.
	// Comma-separated; empty keeps the defaults.
	AggregationKeywords string
}

// StorageConfig selects where uploaded source files are held between the
// API and the worker. RemoteURL empty means local disk.
type StorageConfig struct {
	Dir         string
	Bucket      string
	RemoteURL   string
	RemoteToken string
}

type EventsConfig struct {
	WebhookURL    string
	WebhookSecret string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	warehouseTimeout, err := getEnvInt("WAREHOUSE_QUERY_TIMEOUT", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid WAREHOUSE_QUERY_TIMEOUT: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	rerankTimeout, err := getEnvInt("RERANK_TIMEOUT_MS", 10000)
	if err != nil {
		return nil, fmt.Errorf("invalid RERANK_TIMEOUT_MS: %w", err)
	}

	rerankTopN, err := getEnvInt("RERANK_TOP_N", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid RERANK_TOP_N: %w", err)
	}

	chunkSize, err := getEnvInt("INGEST_CHUNK_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_CHUNK_SIZE: %w", err)
	}

	chunkOverlap, err := getEnvInt("INGEST_CHUNK_OVERLAP", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_CHUNK_OVERLAP: %w", err)
	}

	rowBatch, err := getEnvInt("INGEST_ROW_BATCH_SIZE", 50)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_ROW_BATCH_SIZE: %w", err)
	}

	topK, err := getEnvInt("SEARCH_TOP_K", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_TOP_K: %w", err)
	}

	retrieveTimeout, err := getEnvInt("SEARCH_RETRIEVE_TIMEOUT_MS", 15000)
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_RETRIEVE_TIMEOUT_MS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: maxConns,
			MinConns: minConns,
		},
		Warehouse: WarehouseConfig{
			URL:          getEnv("WAREHOUSE_URL", getEnv("DATABASE_URL", "")),
			QueryTimeout: warehouseTimeout,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
			EmbeddingModel:   getEnv("LLM_EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Rerank: RerankConfig{
			APIKey:    getEnv("RERANK_API_KEY", ""),
			Endpoint:  getEnv("RERANK_ENDPOINT", "https://api.cohere.com/v1/rerank"),
			Model:     getEnv("RERANK_MODEL", "rerank-english-v3.0"),
			TimeoutMs: rerankTimeout,
			TopN:      rerankTopN,
		},
		Ingest: IngestConfig{
			ChunkSize:    chunkSize,
			ChunkOverlap: chunkOverlap,
			RowBatchSize: rowBatch,
		},
		Search: SearchConfig{
			TopK:                topK,
			RetrieveTimeoutMs:   retrieveTimeout,
			AggregationKeywords: getEnv("SEARCH_AGGREGATION_KEYWORDS", ""),
		},
		Storage: StorageConfig{
			Dir:         getEnv("STORAGE_DIR", "./data/uploads"),
			Bucket:      getEnv("STORAGE_BUCKET", "sources"),
			RemoteURL:   getEnv("STORAGE_REMOTE_URL", ""),
			RemoteToken: getEnv("STORAGE_REMOTE_TOKEN", ""),
		},
		Events: EventsConfig{
			WebhookURL:    getEnv("EVENTS_WEBHOOK_URL", ""),
			WebhookSecret: getEnv("EVENTS_WEBHOOK_SECRET", ""),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("INGEST_CHUNK_OVERLAP (%d) must be smaller than INGEST_CHUNK_SIZE (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
