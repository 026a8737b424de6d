package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/goliatone/go-botpoll/core"
	"github.com/goliatone/go-botpoll/migrations"
	sqlstore "github.com/goliatone/go-botpoll/store/sql"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-botpoll" }

// storeHandle bundles what the bot needs from the database.
type storeHandle struct {
	client  *persistence.Client
	factory *sqlstore.RepositoryFactory
	cache   repositorycache.CacheService
	sqlDB   *sql.DB
}

func (h *storeHandle) Close() error {
	if h == nil || h.sqlDB == nil {
		return nil
	}
	return h.sqlDB.Close()
}

// openStore opens the configured database, applies migrations for its
// dialect and builds the repository factory.
func openStore(ctx context.Context, cfg core.StoreConfig, debug bool) (*storeHandle, error) {
	dialectName := core.NormalizeDriver(cfg.Driver)
	driverName, dialect, err := resolveDriver(dialectName)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("botpoll: open %s: %w", driverName, err)
	}
	if dialectName == migrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: driverName, server: cfg.DSN, debug: debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("botpoll: persistence client: %w", err)
	}
	if _, err := migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != dialectName {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(dialectName)); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("botpoll: migrate: %w", err)
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	handle := &storeHandle{client: client, factory: factory, sqlDB: sqlDB}
	if cfg.CacheTTL > 0 {
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = cfg.CacheTTL
		cache, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("botpoll: cache service: %w", err)
		}
		handle.cache = cache
	}
	return handle, nil
}

func resolveDriver(dialect string) (string, schema.Dialect, error) {
	switch dialect {
	case migrations.DialectSQLite:
		return "sqlite3", sqlitedialect.New(), nil
	case migrations.DialectPostgres:
		return "postgres", pgdialect.New(), nil
	default:
		return "", nil, fmt.Errorf("botpoll: unsupported store driver %q", dialect)
	}
}
