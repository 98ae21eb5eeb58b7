// Package config loads service configuration from the environment with
// sane defaults and fail-fast validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Agent    AgentConfig
	VectorDB VectorDBConfig
	Chunker  ChunkerConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
}

type LLMConfig struct {
	Provider     string // openai or anthropic
	OpenAIKey    string
	AnthropicKey string
	BaseURL      string // OpenAI-compatible endpoint override
	EmbedModel   string
	MaxRetries   int
}

type AgentConfig struct {
	Model       string
	Temperature float64
	MaxChunks   int
}

type VectorDBConfig struct {
	Type        string // local, chroma, qdrant, milvus, weaviate, pg
	Addr        string
	APIKey      string
	StoragePath string
	DatabaseURL string
	Dimension   int
}

type ChunkerConfig struct {
	Size    int
	Overlap int
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	maxChunks, err := getEnvInt("AGENT_MAX_CHUNKS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid AGENT_MAX_CHUNKS: %w", err)
	}

	temperature, err := getEnvFloat("AGENT_TEMPERATURE", 0.2)
	if err != nil {
		return nil, fmt.Errorf("invalid AGENT_TEMPERATURE: %w", err)
	}

	dimension, err := getEnvInt("VECTOR_DIMENSION", 1536)
	if err != nil {
		return nil, fmt.Errorf("invalid VECTOR_DIMENSION: %w", err)
	}

	chunkSize, err := getEnvInt("CHUNK_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_SIZE: %w", err)
	}

	chunkOverlap, err := getEnvInt("CHUNK_OVERLAP", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_OVERLAP: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		LLM: LLMConfig{
			Provider:     getEnv("LLM_PROVIDER", "openai"),
			OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
			AnthropicKey: getEnv("ANTHROPIC_API_KEY", ""),
			BaseURL:      getEnv("LLM_BASE_URL", ""),
			EmbedModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			MaxRetries:   maxRetries,
		},
		Agent: AgentConfig{
			Model:       getEnv("AGENT_MODEL", "gpt-4o-mini"),
			Temperature: temperature,
			MaxChunks:   maxChunks,
		},
		VectorDB: VectorDBConfig{
			Type:        getEnv("VECTOR_DB_TYPE", "local"),
			Addr:        getEnv("VECTOR_DB_ADDR", ""),
			APIKey:      getEnv("VECTOR_DB_API_KEY", ""),
			StoragePath: getEnv("VECTOR_DB_PATH", "./vector_indexes"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
			Dimension:   dimension,
		},
		Chunker: ChunkerConfig{
			Size:    chunkSize,
			Overlap: chunkOverlap,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
		// Embeddings always run through the OpenAI API.
		if c.LLM.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.VectorDB.Type == "pg" && c.VectorDB.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}
	return nil
}

// APIKey returns the key for the selected chat provider.
func (c *LLMConfig) APIKey() string {
	if c.Provider == "anthropic" {
		return c.AnthropicKey
	}
	return c.OpenAIKey
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

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}
