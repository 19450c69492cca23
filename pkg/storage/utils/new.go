// Package storageutils is the storage driver factory package.
package storageutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/storage"
	"github.com/strataworks/strata/pkg/storage/inmemory"
	"github.com/strataworks/strata/pkg/storage/postgres"
	"github.com/strataworks/strata/pkg/storage/sqlite"
)

type NewDriverOpts struct {
	ProviderType string

	// SQLitePath is the database file for the sqlite provider.
	SQLitePath string

	// PostgresDSN is the connection string for the postgres provider.
	PostgresDSN string

	Logger *zap.Logger
}

func NewDriver(ctx context.Context, o *NewDriverOpts) (storage.Driver, error) {
	switch o.ProviderType {
	case "inmemory":
		return inmemory.NewDriver(), nil
	case "sqlite":
		return sqlite.NewDriver(o.SQLitePath, o.Logger)
	case "postgres":
		return postgres.NewDriver(ctx, o.PostgresDSN, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", o.ProviderType)
	}
}
