package config

const (
	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0

	defaultAPIListen = ":8090"

	defaultStorageProvider = "sqlite"
	defaultSQLitePath      = "strata.db"

	defaultVectorProvider = "sqlitevec"
	defaultVectorTarget   = "strata-index"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768
	defaultCacheTTLSeconds     = 3600
	defaultCacheMaxEntries     = 4096

	defaultMinimumConsensus = 0.8

	defaultEntityPolicy     = "disabled"
	defaultRelationPolicy   = "bilateral"
	defaultCollectivePolicy = "broadcast"

	defaultFederationTransport = "nop"
	defaultFederationWorkers   = 3
	defaultFederationQueue     = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Storage: StorageConfig{
			Provider:   defaultStorageProvider,
			SQLitePath: defaultSQLitePath,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
			Target:   defaultVectorTarget,
		},
		Embedding: EmbeddingConfig{
			Provider:        defaultEmbeddingProvider,
			Target:          defaultEmbeddingTarget,
			Model:           defaultEmbeddingModel,
			Dimensions:      defaultEmbeddingDimensions,
			CacheEnabled:    true,
			CacheTTLSeconds: defaultCacheTTLSeconds,
			CacheMaxEntries: defaultCacheMaxEntries,
		},
		Memory: MemoryConfig{
			MinimumConsensus: defaultMinimumConsensus,
			EntityPolicy:     defaultEntityPolicy,
			RelationPolicy:   defaultRelationPolicy,
			CollectivePolicy: defaultCollectivePolicy,
		},
		Federation: FederationConfig{
			Transport: defaultFederationTransport,
			Workers:   defaultFederationWorkers,
			QueueSize: defaultFederationQueue,
		},
	}
}
