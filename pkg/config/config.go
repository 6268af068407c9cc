package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/mnemosyne/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// orderedKeys follows the TOML section layout.
var orderedKeys = []string{
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"vector_store.sqlite_path",
	"vector_store.api_key",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"embedding.api_key",
	"embedding.cache_size",
	"memory.retention",
	"memory.system_retention",
	"memory.summary_interval",
	"memory.list_limit_max",
	"memory.max_total_fetch",
	"memory.assistant_name",
	"memory.history_length",
	"migration.batch_size",
	"migration.workers",
	"migration.progress_every",
	"migration.backup_dir",
	"summary.provider",
	"summary.target",
	"summary.model",
	"summary.api_key",
	"api.listen",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
	"client.api_target",
}

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in section order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}
	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// IsSecretKey reports whether the key holds a credential that listings mask.
func IsSecretKey(key string) bool {
	return strings.HasSuffix(key, ".api_key")
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads config.toml from the target .mnemosyne/ directory.
// If the file does not exist, returns NewDefaultConfig() so callers always
// receive a fully-populated Config. Fields set in the file override the
// defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, md, err := parseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg, md)

	return cfg, nil
}

// applyDefaults fills unset fields in cfg with values from NewDefaultConfig().
// Retention budgets are filled only when absent from the file because zero
// is a meaningful value for them.
func applyDefaults(cfg *Config, md toml.MetaData) {
	d := NewDefaultConfig()

	cfg.Version = or(cfg.Version, d.Version)

	cfg.VectorStore.Provider = or(cfg.VectorStore.Provider, d.VectorStore.Provider)
	cfg.VectorStore.Collection = or(cfg.VectorStore.Collection, d.VectorStore.Collection)

	cfg.Embedding.Provider = or(cfg.Embedding.Provider, d.Embedding.Provider)
	cfg.Embedding.Target = or(cfg.Embedding.Target, d.Embedding.Target)
	cfg.Embedding.Model = or(cfg.Embedding.Model, d.Embedding.Model)
	cfg.Embedding.Dimensions = or(cfg.Embedding.Dimensions, d.Embedding.Dimensions)
	if !md.IsDefined("embedding", "cache_size") {
		cfg.Embedding.CacheSize = d.Embedding.CacheSize
	}

	if !md.IsDefined("memory", "retention") {
		cfg.Memory.Retention = d.Memory.Retention
	}
	if !md.IsDefined("memory", "system_retention") {
		cfg.Memory.SystemRetention = d.Memory.SystemRetention
	}
	cfg.Memory.SummaryInterval = or(cfg.Memory.SummaryInterval, d.Memory.SummaryInterval)
	cfg.Memory.ListLimitMax = or(cfg.Memory.ListLimitMax, d.Memory.ListLimitMax)
	cfg.Memory.MaxTotalFetch = or(cfg.Memory.MaxTotalFetch, d.Memory.MaxTotalFetch)
	cfg.Memory.AssistantName = or(cfg.Memory.AssistantName, d.Memory.AssistantName)
	cfg.Memory.HistoryLength = or(cfg.Memory.HistoryLength, d.Memory.HistoryLength)

	cfg.Migration.BatchSize = or(cfg.Migration.BatchSize, d.Migration.BatchSize)
	cfg.Migration.Workers = or(cfg.Migration.Workers, d.Migration.Workers)
	cfg.Migration.ProgressEvery = or(cfg.Migration.ProgressEvery, d.Migration.ProgressEvery)

	cfg.Summary.Provider = or(cfg.Summary.Provider, d.Summary.Provider)
	cfg.Summary.Target = or(cfg.Summary.Target, d.Summary.Target)
	cfg.Summary.Model = or(cfg.Summary.Model, d.Summary.Model)

	cfg.API.Listen = or(cfg.API.Listen, d.API.Listen)
	cfg.EventStream.Topic = or(cfg.EventStream.Topic, d.EventStream.Topic)
	cfg.Client.APITarget = or(cfg.Client.APITarget, d.Client.APITarget)
}

func or[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// SaveConfig persists the configuration to config.toml in the target .mnemosyne/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a Config with defaults for the named provider preset.
// Supported presets: "ollama", "openai".
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "ollama":
		return cfg, nil

	case "openai":
		cfg.Embedding = EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			CacheSize:  cfg.Embedding.CacheSize,
		}
		cfg.Summary = SummaryConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		}
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"ollama", "openai"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg, _, err := parseConfigTOML(data)
	return cfg, err
}

func parseConfigTOML(data []byte) (*Config, toml.MetaData, error) {
	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, md, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, md, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, md, nil
}
