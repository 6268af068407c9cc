package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent mnemosyne configuration stored as
// config.toml in the .mnemosyne/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Memory      MemoryConfig      `toml:"memory"`
	Migration   MigrationConfig   `toml:"migration"`
	Summary     SummaryConfig     `toml:"summary"`
	API         APIConfig         `toml:"api"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Client      ClientConfig      `toml:"client"`
}

// VectorStoreConfig selects and addresses the record store.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`

	// CacheSize is the embedding cache budget in bytes. Zero disables it.
	CacheSize int64 `toml:"cache_size"`
}

// MemoryConfig holds retention and listing settings.
type MemoryConfig struct {
	// Retention is the number of memory blocks kept in user messages.
	// Negative keeps everything, zero strips every block.
	Retention int `toml:"retention"`

	// SystemRetention bounds memory blocks and system messages in the
	// system prompt, with the same sign convention as Retention.
	SystemRetention int `toml:"system_retention"`

	// SummaryInterval is a Go duration string, e.g. "30m".
	SummaryInterval string `toml:"summary_interval,omitempty"`

	ListLimitMax  int    `toml:"list_limit_max,omitempty"`
	MaxTotalFetch int    `toml:"max_total_fetch,omitempty"`
	AssistantName string `toml:"assistant_name,omitempty"`
	HistoryLength int    `toml:"history_length,omitempty"`
}

// MigrationConfig tunes the migration engine.
type MigrationConfig struct {
	BatchSize     int `toml:"batch_size,omitempty"`
	Workers       int `toml:"workers,omitempty"`
	ProgressEvery int `toml:"progress_every,omitempty"`

	// BackupDir overrides <dotdir>/backups.
	BackupDir string `toml:"backup_dir,omitempty"`
}

// SummaryConfig selects the summarizer model.
type SummaryConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventStreamConfig selects the memory event publisher. An empty provider
// disables publishing.
type EventStreamConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// `mnemosyne serve`. Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// SummaryIntervalDuration parses Memory.SummaryInterval.
func (c *Config) SummaryIntervalDuration() (time.Duration, error) {
	if c.Memory.SummaryInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Memory.SummaryInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid memory.summary_interval: %w", err)
	}
	return d, nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

// intKey renders zero as empty unless keepZero is set, matching omitempty.
func intKey(name string, keepZero bool, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			n := *field(c)
			if n == 0 && !keepZero {
				return ""
			}
			return strconv.Itoa(n)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"vector_store.provider":    stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":      stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection":  stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"vector_store.sqlite_path": stringKey(func(c *Config) *string { return &c.VectorStore.SQLitePath }),
	"vector_store.api_key":     stringKey(func(c *Config) *string { return &c.VectorStore.APIKey }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.api_key":  stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"embedding.cache_size": {
		get: func(c *Config) string {
			if c.Embedding.CacheSize == 0 {
				return ""
			}
			return strconv.FormatInt(c.Embedding.CacheSize, 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.cache_size: %w", err)
			}
			c.Embedding.CacheSize = n
			return nil
		},
	},

	"memory.retention":        intKey("memory.retention", true, func(c *Config) *int { return &c.Memory.Retention }),
	"memory.system_retention": intKey("memory.system_retention", true, func(c *Config) *int { return &c.Memory.SystemRetention }),
	"memory.summary_interval": {
		get: func(c *Config) string { return c.Memory.SummaryInterval },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for memory.summary_interval: %w", err)
			}
			c.Memory.SummaryInterval = v
			return nil
		},
	},
	"memory.list_limit_max":  intKey("memory.list_limit_max", false, func(c *Config) *int { return &c.Memory.ListLimitMax }),
	"memory.max_total_fetch": intKey("memory.max_total_fetch", false, func(c *Config) *int { return &c.Memory.MaxTotalFetch }),
	"memory.assistant_name":  stringKey(func(c *Config) *string { return &c.Memory.AssistantName }),
	"memory.history_length":  intKey("memory.history_length", false, func(c *Config) *int { return &c.Memory.HistoryLength }),

	"migration.batch_size":     intKey("migration.batch_size", false, func(c *Config) *int { return &c.Migration.BatchSize }),
	"migration.workers":        intKey("migration.workers", false, func(c *Config) *int { return &c.Migration.Workers }),
	"migration.progress_every": intKey("migration.progress_every", false, func(c *Config) *int { return &c.Migration.ProgressEvery }),
	"migration.backup_dir":     stringKey(func(c *Config) *string { return &c.Migration.BackupDir }),

	"summary.provider": stringKey(func(c *Config) *string { return &c.Summary.Provider }),
	"summary.target":   stringKey(func(c *Config) *string { return &c.Summary.Target }),
	"summary.model":    stringKey(func(c *Config) *string { return &c.Summary.Model }),
	"summary.api_key":  stringKey(func(c *Config) *string { return &c.Summary.APIKey }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"eventstream.provider": stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.topic":    stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = SplitList(v)
			return nil
		},
	},

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),
}

// SplitList splits a comma separated value, dropping empty entries.
func SplitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
