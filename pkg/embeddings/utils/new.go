// Package embeddingutils is the embeddings utility package.
package embeddingutils

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/embeddings"
	"github.com/strataworks/strata/pkg/embeddings/cache"
	"github.com/strataworks/strata/pkg/embeddings/ollama"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string

	// CacheDisabled skips the memoization layer entirely.
	CacheDisabled bool

	// CacheTTL and CacheMaxEntries tune the memoization layer wrapped
	// around the provider. Zero values take the cache defaults.
	CacheTTL        time.Duration
	CacheMaxEntries int64

	Logger *zap.Logger
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	var inner embeddings.Embedder

	switch o.ProviderType {
	case "ollama":
		e, err := ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}

	if o.CacheDisabled {
		return inner, nil
	}

	return cache.NewEmbedder(inner, cache.Config{
		Model:      o.Model,
		TTL:        o.CacheTTL,
		MaxEntries: o.CacheMaxEntries,
	}, o.Logger)
}
