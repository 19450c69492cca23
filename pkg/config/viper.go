package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found in configDir), and binds environment variables with the
// STRATA_ prefix.
//
// Config precedence (highest to lowest):
//  1. Environment variables (STRATA_API_LISTEN, STRATA_MEMORY_KEY, etc.)
//  2. config.toml file values
//  3. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	if configDir != "" {
		v.AddConfigPath(configDir)
	} else {
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: STRATA_API_LISTEN, STRATA_STORAGE_PROVIDER, etc.
	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Load unmarshals the resolved viper state into a Config and checks the
// version field.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	v.SetDefault("debug", d.Debug)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.cache_enabled", d.Embedding.CacheEnabled)
	v.SetDefault("embedding.cache_ttl_seconds", d.Embedding.CacheTTLSeconds)
	v.SetDefault("embedding.cache_max_entries", d.Embedding.CacheMaxEntries)

	// Memory
	v.SetDefault("memory.key", d.Memory.Key)
	v.SetDefault("memory.minimum_consensus", d.Memory.MinimumConsensus)
	v.SetDefault("memory.require_mentor", d.Memory.RequireMentor)
	v.SetDefault("memory.entity_policy", d.Memory.EntityPolicy)
	v.SetDefault("memory.relation_policy", d.Memory.RelationPolicy)
	v.SetDefault("memory.collective_policy", d.Memory.CollectivePolicy)

	// Federation
	v.SetDefault("federation.transport", d.Federation.Transport)
	v.SetDefault("federation.source_node", d.Federation.SourceNode)
	v.SetDefault("federation.workers", d.Federation.Workers)
	v.SetDefault("federation.queue_size", d.Federation.QueueSize)
}
