package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration loaded from environment variables.
// It is immutable after Load() returns.
type Config struct {
	Port             int
	Environment      string
	DatabaseURL      string
	DatabaseMaxConns int

	GCPProject        string
	GCPRegion         string
	VertexAILocation  string
	VertexAIModel     string
	EmbeddingLocation string
	EmbeddingModel    string
	EmbeddingDim      int

	GCSBucketName      string
	GCSSignedURLExpiry string
	DocAIProcessorID   string
	DocAILocation      string

	QdrantURL    string
	QdrantAPIKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PubSubTopicIngest        string
	PubSubSubscriptionIngest string

	FirebaseProjectID string
	FrontendURL       string
	InternalAuthSecret string

	ChunkSize    int
	ChunkOverlap int

	FetchConcurrency int
	FetchTimeout     int

	IndexOnStartup bool
}

// Load reads configuration from environment variables.
// Required variables (DATABASE_URL, GOOGLE_CLOUD_PROJECT) cause an error if missing.
// Optional variables use sensible defaults.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	gcpProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if gcpProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required")
	}

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),

		GCPProject:        gcpProject,
		GCPRegion:         envStr("GCP_REGION", "us-east4"),
		VertexAILocation:  envStr("VERTEX_AI_LOCATION", "global"),
		VertexAIModel:     envStr("VERTEX_AI_MODEL", "gemini-3-pro-preview"),
		EmbeddingLocation: envStr("VERTEX_AI_EMBEDDING_LOCATION", envStr("GCP_REGION", "us-east4")),
		EmbeddingModel:    envStr("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDim:      envInt("EMBEDDING_DIMENSIONS", 1536),

		GCSBucketName:      envStr("GCS_BUCKET_NAME", ""),
		GCSSignedURLExpiry: envStr("GCS_SIGNED_URL_EXPIRY", "15m"),
		DocAIProcessorID:   envStr("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocAILocation:      envStr("DOCUMENT_AI_LOCATION", "us"),

		QdrantURL:    envStr("QDRANT_URL", "localhost:6334"),
		QdrantAPIKey: envStr("QDRANT_API_KEY", ""),

		RedisAddr:     envStr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		PubSubTopicIngest:        envStr("PUBSUB_TOPIC_INGEST", "agent-ingest-requests"),
		PubSubSubscriptionIngest: envStr("PUBSUB_SUBSCRIPTION_INGEST", "agent-ingest-requests-worker"),

		FirebaseProjectID:  envStr("FIREBASE_PROJECT_ID", ""),
		FrontendURL:        envStr("FRONTEND_URL", "http://localhost:3000"),
		InternalAuthSecret: envStr("INTERNAL_AUTH_SECRET", ""),

		ChunkSize:    envInt("CHUNK_SIZE", 1500),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 200),

		FetchConcurrency: envInt("FETCH_CONCURRENCY", 5),
		FetchTimeout:     envInt("FETCH_TIMEOUT_SECONDS", 60),

		IndexOnStartup: envStr("INDEX_ON_STARTUP", "false") == "true",
	}

	if cfg.Environment != "development" && cfg.InternalAuthSecret == "" {
		return nil, fmt.Errorf("config.Load: INTERNAL_AUTH_SECRET is required in %s environment", cfg.Environment)
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
