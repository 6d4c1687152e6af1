package docstore

import (
	"context"
	"fmt"

	"engagement/internal/config"
	memorystore "engagement/internal/infra/docstore/memory"
	pgstore "engagement/internal/infra/docstore/postgres"
	s3store "engagement/internal/infra/docstore/s3"
	sqlitestore "engagement/internal/infra/docstore/sqlite"
)

// Open selects a Store implementation from the storage configuration.
// An empty driver means sqlite.
func Open(ctx context.Context, cfg config.Storage) (Store, error) {
	driver := Driver(cfg.Driver)
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return NewMemory()
	case DriverSQLite:
		return sqlitestore.New(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return pgstore.New(ctx, cfg.PostgresDSN)
	case DriverS3:
		return s3store.New(ctx, s3store.Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// NewMemory returns an empty in-memory Store suitable for tests.
func NewMemory() (Store, error) {
	return memorystore.New()
}
