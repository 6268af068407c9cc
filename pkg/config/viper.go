package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/mnemosyne/pkg/dotdir"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MNEMOSYNE"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the MNEMOSYNE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (MNEMOSYNE_VECTOR_STORE_PROVIDER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes a Config from the merged viper view.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		VectorStore: VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			Target:     v.GetString("vector_store.target"),
			Collection: v.GetString("vector_store.collection"),
			SQLitePath: v.GetString("vector_store.sqlite_path"),
			APIKey:     v.GetString("vector_store.api_key"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
			APIKey:     v.GetString("embedding.api_key"),
			CacheSize:  v.GetInt64("embedding.cache_size"),
		},
		Memory: MemoryConfig{
			Retention:       v.GetInt("memory.retention"),
			SystemRetention: v.GetInt("memory.system_retention"),
			SummaryInterval: v.GetString("memory.summary_interval"),
			ListLimitMax:    v.GetInt("memory.list_limit_max"),
			MaxTotalFetch:   v.GetInt("memory.max_total_fetch"),
			AssistantName:   v.GetString("memory.assistant_name"),
			HistoryLength:   v.GetInt("memory.history_length"),
		},
		Migration: MigrationConfig{
			BatchSize:     v.GetInt("migration.batch_size"),
			Workers:       v.GetInt("migration.workers"),
			ProgressEvery: v.GetInt("migration.progress_every"),
			BackupDir:     v.GetString("migration.backup_dir"),
		},
		Summary: SummaryConfig{
			Provider: v.GetString("summary.provider"),
			Target:   v.GetString("summary.target"),
			Model:    v.GetString("summary.model"),
			APIKey:   v.GetString("summary.api_key"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  brokers(v),
			Topic:    v.GetString("eventstream.topic"),
		},
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
	}
}

// brokers accepts a TOML list or a comma separated env value.
func brokers(v *viper.Viper) []string {
	var out []string
	for _, b := range v.GetStringSlice("eventstream.brokers") {
		out = append(out, SplitList(b)...)
	}
	return out
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Every key is registered, even empty ones, so AutomaticEnv can
	// resolve it through Get.
	for _, key := range ValidConfigKeys() {
		v.SetDefault(key, configKeys[key].get(d))
	}
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("memory.retention", d.Memory.Retention)
	v.SetDefault("memory.system_retention", d.Memory.SystemRetention)
	v.SetDefault("memory.list_limit_max", d.Memory.ListLimitMax)
	v.SetDefault("memory.max_total_fetch", d.Memory.MaxTotalFetch)
	v.SetDefault("memory.history_length", d.Memory.HistoryLength)
	v.SetDefault("migration.batch_size", d.Migration.BatchSize)
	v.SetDefault("migration.workers", d.Migration.Workers)
	v.SetDefault("migration.progress_every", d.Migration.ProgressEvery)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
}
