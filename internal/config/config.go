// Package config provides configuration loading for sentra.
//
// Configuration comes from a YAML file overridden by environment variables,
// with hardcoded defaults for everything else.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete sentra configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Qdrant        QdrantConfig        `koanf:"qdrant"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Generation    GenerationConfig    `koanf:"generation"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	SmartAccess   SmartAccessConfig   `koanf:"smartaccess"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	OTLPProtocol    string `koanf:"otlp_protocol"` // grpc or http
}

// VectorStoreConfig selects the vector store backend.
type VectorStoreConfig struct {
	Provider string `koanf:"provider"` // qdrant or memory
}

// QdrantConfig holds Qdrant connection and collection configuration.
type QdrantConfig struct {
	Host                string `koanf:"host"`
	Port                int    `koanf:"port"`
	UseTLS              bool   `koanf:"use_tls"`
	DocumentsCollection string `koanf:"documents_collection"`
	EventsCollection    string `koanf:"events_collection"`
	VectorSize          int    `koanf:"vector_size"`
}

// EmbeddingsConfig holds the text-embeddings-inference backend configuration.
type EmbeddingsConfig struct {
	BaseURL string   `koanf:"base_url"`
	Model   string   `koanf:"model"`
	Timeout Duration `koanf:"timeout"`
}

// GenerationConfig holds the answer synthesis backend configuration.
type GenerationConfig struct {
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	Timeout     Duration `koanf:"timeout"`
	MaxTokens   int      `koanf:"max_tokens"`
	Temperature float64  `koanf:"temperature"`
}

// RetrievalConfig holds retrieval pipeline tuning.
type RetrievalConfig struct {
	TopK            int `koanf:"top_k"`
	TopN            int `koanf:"top_n"`
	MaxContextChars int `koanf:"max_context_chars"`
	ChunkLen        int `koanf:"chunk_len"`
}

// SmartAccessConfig holds behavioral anomaly detection configuration.
type SmartAccessConfig struct {
	Threshold    float64  `koanf:"threshold"`
	BaselineDays int      `koanf:"baseline_days"`
	SettingsPath string   `koanf:"settings_path"`
	CheckWindow  Duration `koanf:"check_window"`
	NATSURL      string   `koanf:"nats_url"`
	NATSSubject  string   `koanf:"nats_subject"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.VectorStore.Provider {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("unknown vector store provider: %q (must be qdrant or memory)", c.VectorStore.Provider)
	}

	if c.Qdrant.DocumentsCollection == c.Qdrant.EventsCollection {
		return errors.New("documents and events collections must be distinct")
	}
	if c.Qdrant.VectorSize < 1 {
		return fmt.Errorf("invalid vector size: %d", c.Qdrant.VectorSize)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	if c.SmartAccess.Threshold < -1 || c.SmartAccess.Threshold > 1 {
		return fmt.Errorf("smart access threshold must be within [-1, 1], got %g", c.SmartAccess.Threshold)
	}
	if c.SmartAccess.BaselineDays < 1 {
		return fmt.Errorf("smart access baseline days must be at least 1, got %d", c.SmartAccess.BaselineDays)
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopN < 1 {
		return errors.New("retrieval top_k and top_n must be positive")
	}
	if c.Retrieval.TopN > c.Retrieval.TopK {
		return fmt.Errorf("retrieval top_n (%d) cannot exceed top_k (%d)", c.Retrieval.TopN, c.Retrieval.TopK)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "sentra"
	}
	if cfg.Observability.OTLPProtocol == "" {
		cfg.Observability.OTLPProtocol = "grpc"
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "qdrant"
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.DocumentsCollection == "" {
		cfg.Qdrant.DocumentsCollection = "documents"
	}
	if cfg.Qdrant.EventsCollection == "" {
		cfg.Qdrant.EventsCollection = "behavior_events"
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8081"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(30 * time.Second)
	}

	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://api.openai.com"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-4o-mini"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = Duration(60 * time.Second)
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 1024
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 20
	}
	if cfg.Retrieval.TopN == 0 {
		cfg.Retrieval.TopN = 5
	}
	if cfg.Retrieval.MaxContextChars == 0 {
		cfg.Retrieval.MaxContextChars = 6000
	}
	if cfg.Retrieval.ChunkLen == 0 {
		cfg.Retrieval.ChunkLen = 800
	}

	if cfg.SmartAccess.Threshold == 0 {
		cfg.SmartAccess.Threshold = 0.85
	}
	if cfg.SmartAccess.BaselineDays == 0 {
		cfg.SmartAccess.BaselineDays = 30
	}
	if cfg.SmartAccess.CheckWindow == 0 {
		cfg.SmartAccess.CheckWindow = Duration(48 * time.Hour)
	}
	if cfg.SmartAccess.NATSSubject == "" {
		cfg.SmartAccess.NATSSubject = "sentra.smartaccess.flagged"
	}
}
