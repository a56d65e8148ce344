package config

import (
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port     string `toml:"port"`
	Version  string `toml:"version"`
	LogLevel string `toml:"log_level"`
	APIToken string `toml:"api_token"` // bearer token required on /api routes when set

	// Embedding cache persistence
	DatabaseURL           string `toml:"database_url"`            // postgres://, user:pass@tcp(...)/db for MySQL, or a SQLite file path
	EmbeddingCacheBackend string `toml:"embedding_cache_backend"` // memory, sql or qdrant
	QdrantHost            string `toml:"qdrant_host"`
	QdrantPort            int    `toml:"qdrant_port"`
	QdrantCollection      string `toml:"qdrant_collection"`

	// Embedding provider and summarizer
	OpenAIKey                      string `toml:"openai_api_key"`
	OpenAIBaseURL                  string `toml:"openai_base_url"` // OpenAI-compatible endpoint override
	OpenAIEmbeddingModel           string `toml:"openai_embedding_model"`
	OpenAIChatModel                string `toml:"openai_chat_model"`
	AzureOpenAIEndpoint            string `toml:"azure_openai_endpoint"`
	AzureOpenAIKey                 string `toml:"azure_openai_key"`
	AzureOpenAIEmbeddingDeployment string `toml:"azure_openai_embedding_deployment"`
	AzureOpenAIGPTDeployment       string `toml:"azure_openai_gpt_deployment"`
	OpenAITimeout                  int    `toml:"openai_timeout"` // seconds per provider call
	EmbeddingDimensions            int    `toml:"embedding_dimensions"`

	// Segmentation tunables
	GapThresholdSeconds  int     `toml:"gap_threshold_seconds"`
	SimilarityThreshold  float64 `toml:"similarity_threshold"`
	SemanticEnabled      bool    `toml:"semantic_enabled"`
	SemanticMinMessages  int     `toml:"semantic_min_messages"`
	ChannelConcurrency   int     `toml:"channel_concurrency"`
	EmbeddingConcurrency int     `toml:"embedding_concurrency"`
	TrackedUser          string  `toml:"tracked_user"`

	// Collaborators
	SlackExportDir  string `toml:"slack_export_dir"`
	NatsURL         string `toml:"nats_url"`
	NatsToken       string `toml:"nats_token"`
	NatsSubject     string `toml:"nats_subject"`
	SendGridAPIKey  string `toml:"sendgrid_api_key"`
	DigestFromEmail string `toml:"digest_from_email"`
	DigestToEmail   string `toml:"digest_to_email"`
}

// Defaults returns the built-in configuration before any file or environment overrides
func Defaults() *Config {
	return &Config{
		Port:                  "8080",
		Version:               "1.0.0",
		LogLevel:              "info",
		DatabaseURL:           "chatdigest-cache.db",
		EmbeddingCacheBackend: "sql",
		QdrantHost:            "localhost",
		QdrantPort:            6334,
		QdrantCollection:      "chatdigest_embeddings",
		OpenAIEmbeddingModel:  "text-embedding-3-small",
		OpenAIChatModel:       "gpt-4o-mini",
		OpenAITimeout:         30,
		EmbeddingDimensions:   1536,
		GapThresholdSeconds:   1800,
		SimilarityThreshold:   0.6,
		SemanticEnabled:       true,
		SemanticMinMessages:   2,
		ChannelConcurrency:    4,
		EmbeddingConcurrency:  8,
		NatsSubject:           "chatdigest.segmentation.completed",
		DigestFromEmail:       "digest@chatdigest.local",
	}
}

// Load initializes and returns application configuration.
// Precedence: defaults, then the TOML file named by CHATDIGEST_CONFIG, then environment.
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := Defaults()

	if path := os.Getenv("CHATDIGEST_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, config); err != nil {
			log.Printf("Failed to parse config file %s: %v\n", path, err)
		}
	}

	config.Port = getEnv("PORT", config.Port)
	config.Version = getEnv("VERSION", config.Version)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)
	config.APIToken = getEnv("API_TOKEN", config.APIToken)
	config.DatabaseURL = getEnv("DATABASE_URL", config.DatabaseURL)
	config.EmbeddingCacheBackend = strings.ToLower(getEnv("EMBEDDING_CACHE_BACKEND", config.EmbeddingCacheBackend))
	config.QdrantHost = getEnv("QDRANT_HOST", config.QdrantHost)
	config.QdrantPort = getEnvInt("QDRANT_PORT", config.QdrantPort)
	config.QdrantCollection = getEnv("QDRANT_COLLECTION", config.QdrantCollection)

	config.OpenAIKey = getEnv("OPENAI_API_KEY", config.OpenAIKey)
	config.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", config.OpenAIBaseURL)
	config.OpenAIEmbeddingModel = getEnv("OPENAI_EMBEDDING_MODEL", config.OpenAIEmbeddingModel)
	config.OpenAIChatModel = getEnv("OPENAI_CHAT_MODEL", config.OpenAIChatModel)
	config.AzureOpenAIEndpoint = getEnv("AZURE_OPENAI_ENDPOINT", config.AzureOpenAIEndpoint)
	config.AzureOpenAIKey = getEnv("AZURE_OPENAI_KEY", config.AzureOpenAIKey)
	config.AzureOpenAIEmbeddingDeployment = getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", config.AzureOpenAIEmbeddingDeployment)
	config.AzureOpenAIGPTDeployment = getEnv("AZURE_OPENAI_GPT_DEPLOYMENT", config.AzureOpenAIGPTDeployment)
	config.OpenAITimeout = getEnvInt("OPENAI_TIMEOUT", config.OpenAITimeout)
	config.EmbeddingDimensions = getEnvInt("EMBEDDING_DIMENSIONS", config.EmbeddingDimensions)

	config.GapThresholdSeconds = getEnvInt("GAP_THRESHOLD_SECONDS", config.GapThresholdSeconds)
	config.SimilarityThreshold = getEnvFloat("SIMILARITY_THRESHOLD", config.SimilarityThreshold)
	config.SemanticEnabled = getEnvBool("SEMANTIC_ENABLED", config.SemanticEnabled)
	config.SemanticMinMessages = getEnvInt("SEMANTIC_MIN_MESSAGES", config.SemanticMinMessages)
	config.ChannelConcurrency = getEnvInt("CHANNEL_CONCURRENCY", config.ChannelConcurrency)
	config.EmbeddingConcurrency = getEnvInt("EMBEDDING_CONCURRENCY", config.EmbeddingConcurrency)
	config.TrackedUser = getEnv("TRACKED_USER", config.TrackedUser)

	config.SlackExportDir = getEnv("SLACK_EXPORT_DIR", config.SlackExportDir)
	config.NatsURL = getEnv("NATS_URL", config.NatsURL)
	config.NatsToken = getEnv("NATS_TOKEN", config.NatsToken)
	config.NatsSubject = getEnv("NATS_SUBJECT", config.NatsSubject)
	config.SendGridAPIKey = getEnv("SENDGRID_API_KEY", config.SendGridAPIKey)
	config.DigestFromEmail = getEnv("DIGEST_FROM_EMAIL", config.DigestFromEmail)
	config.DigestToEmail = getEnv("DIGEST_TO_EMAIL", config.DigestToEmail)

	return config
}

// UseAzureOpenAI reports whether Azure OpenAI is configured as the primary provider
func (c *Config) UseAzureOpenAI() bool {
	return c.AzureOpenAIEndpoint != "" && c.AzureOpenAIKey != "" && c.AzureOpenAIEmbeddingDeployment != ""
}

// HasOpenAIFallback reports whether the OpenAI platform key is configured
func (c *Config) HasOpenAIFallback() bool {
	return c.OpenAIKey != ""
}

// ProviderTimeout is the per-call embedding/LLM timeout
func (c *Config) ProviderTimeout() time.Duration {
	if c.OpenAITimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.OpenAITimeout) * time.Second
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float with a default fallback
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output to stdout
func (c *Config) SetupLogger() zerolog.Logger {
	return c.SetupLoggerTo(os.Stdout)
}

// SetupLoggerTo configures zerolog with JSON output and single-line format on w
func (c *Config) SetupLoggerTo(w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(w).With().
		Timestamp().
		Str("service", "chatdigest").
		Str("version", c.Version).
		Logger()

	// Set log level based on configuration
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
