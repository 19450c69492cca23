// Package vectorutils is the vector provider factory package.
package vectorutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/vector"
	"github.com/strataworks/strata/pkg/vector/inmemory"
	"github.com/strataworks/strata/pkg/vector/qdrant"
	"github.com/strataworks/strata/pkg/vector/sqlitevec"
)

type NewProviderOpts struct {
	ProviderType string
	Target       string
	Port         int
	Dimensions   uint
	Logger       *zap.Logger
}

func NewProvider(o *NewProviderOpts) (vector.Provider, error) {
	switch o.ProviderType {
	case "inmemory":
		return inmemory.NewProvider(), nil
	case "sqlitevec":
		return sqlitevec.NewProvider(sqlitevec.Config{
			Dir:        o.Target,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewProvider(qdrant.Config{
			Host:       o.Target,
			Port:       o.Port,
			Dimensions: o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector index provider: %s", o.ProviderType)
	}
}
