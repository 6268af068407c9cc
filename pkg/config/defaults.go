package config

import (
	"github.com/papercomputeco/mnemosyne/pkg/eventstream/kafka"
	"github.com/papercomputeco/mnemosyne/pkg/memory"
	"github.com/papercomputeco/mnemosyne/pkg/migrate"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

const (
	defaultProvider = "ollama"
	defaultOllama   = "http://localhost:11434"

	defaultVectorProvider  = "sqlite"
	defaultCollection      = "memories"
	defaultEmbeddingModel  = "nomic-embed-text"
	defaultEmbeddingDims   = 768
	defaultEmbeddingCache  = 32 << 20
	defaultRetention       = 3
	defaultSystemRetention = 1
	defaultSummaryInterval = "30m"
	defaultHistoryLength   = 50
	defaultSummaryModel    = "llama3.2"
	defaultAPIListen       = ":8090"
	defaultClientAPITarget = "http://localhost:8090"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultProvider,
			Target:     defaultOllama,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDims,
			CacheSize:  defaultEmbeddingCache,
		},
		Memory: MemoryConfig{
			Retention:       defaultRetention,
			SystemRetention: defaultSystemRetention,
			SummaryInterval: defaultSummaryInterval,
			ListLimitMax:    memory.MaxListLimit,
			MaxTotalFetch:   memory.MaxTotalFetch,
			AssistantName:   retention.DefaultAssistantName,
			HistoryLength:   defaultHistoryLength,
		},
		Migration: MigrationConfig{
			BatchSize:     vector.DefaultMaxPageSize,
			Workers:       migrate.DefaultWorkers,
			ProgressEvery: migrate.DefaultProgressEvery,
		},
		Summary: SummaryConfig{
			Provider: defaultProvider,
			Target:   defaultOllama,
			Model:    defaultSummaryModel,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			Topic: kafka.DefaultTopic,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}
