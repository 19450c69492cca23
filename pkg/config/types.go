// Package config defines the persistent strata configuration and its viper
// wiring. The config.toml layout uses sections for logical grouping.
package config

// Config represents the full strata configuration.
type Config struct {
	Version     int               `mapstructure:"version"`
	Debug       bool              `mapstructure:"debug"`
	API         APIConfig         `mapstructure:"api"`
	Storage     StorageConfig     `mapstructure:"storage"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Memory      MemoryConfig      `mapstructure:"memory"`
	Federation  FederationConfig  `mapstructure:"federation"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

// StorageConfig holds encrypted item storage settings.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// VectorStoreConfig holds vector index settings.
type VectorStoreConfig struct {
	Provider string `mapstructure:"provider"`
	Target   string `mapstructure:"target"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Target     string `mapstructure:"target"`
	Model      string `mapstructure:"model"`
	Dimensions uint   `mapstructure:"dimensions"`

	// CacheEnabled wraps the provider in the in-process embedding cache.
	CacheEnabled bool `mapstructure:"cache_enabled"`

	// CacheTTLSeconds bounds how long a cached embedding stays valid.
	CacheTTLSeconds uint `mapstructure:"cache_ttl_seconds"`

	// CacheMaxEntries bounds the number of cached embeddings.
	CacheMaxEntries uint `mapstructure:"cache_max_entries"`
}

// MemoryConfig holds the memory subsystem settings.
type MemoryConfig struct {
	// Key is the hex-encoded 32-byte encryption key.
	Key string `mapstructure:"key"`

	// MinimumConsensus gates collective writes, 0..1 inclusive.
	MinimumConsensus float64 `mapstructure:"minimum_consensus"`

	// RequireMentor additionally requires mentor approval on collective
	// writes.
	RequireMentor bool `mapstructure:"require_mentor"`

	// Default federation policies per scope kind.
	EntityPolicy     string `mapstructure:"entity_policy"`
	RelationPolicy   string `mapstructure:"relation_policy"`
	CollectivePolicy string `mapstructure:"collective_policy"`
}

// FederationConfig holds peer replication settings.
type FederationConfig struct {
	// Transport selects the delivery mechanism: nop or kafka.
	Transport string `mapstructure:"transport"`

	// SourceNode names this node in outgoing event envelopes.
	SourceNode string `mapstructure:"source_node"`

	// Workers is the federation pool size.
	Workers uint `mapstructure:"workers"`

	// QueueSize is the federation pool queue capacity.
	QueueSize uint `mapstructure:"queue_size"`

	// Nodes lists statically configured peers.
	Nodes []NodeConfig `mapstructure:"nodes"`
}

// NodeConfig describes one statically configured peer node.
type NodeConfig struct {
	ID     string   `mapstructure:"id"`
	Addr   string   `mapstructure:"addr"`
	Agents []string `mapstructure:"agents"`
}
