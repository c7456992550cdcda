package main

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/leadgraph/leadgraph/internal/config"
	"github.com/leadgraph/leadgraph/internal/engine/executor"
	"github.com/leadgraph/leadgraph/internal/engine/history"
	"github.com/leadgraph/leadgraph/internal/engine/metadata"
	"github.com/leadgraph/leadgraph/internal/engine/query"
	"github.com/leadgraph/leadgraph/internal/engine/relation"
	"github.com/leadgraph/leadgraph/internal/engine/store"
)

// engine bundles the wired components a CLI command needs.
type engine struct {
	db       *sql.DB
	store    *store.Store
	cache    *metadata.SchemaCache
	executor *executor.Executor
	tracker  *history.Tracker
	logger   *zap.Logger

	backend metadata.Backend
}

// openEngine connects to the database and wires the full component
// stack from configuration.
func openEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		return nil, fmt.Errorf("no database configured: set DATABASE_URL or database.url in leadgraph.yml")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cacheConfig := metadata.Config{
		DefaultTTL: cfg.Cache.TTL(),
		Prefix:     cfg.Cache.Prefix,
	}
	var backend metadata.Backend
	if cfg.Redis.Addr != "" {
		backend, err = metadata.NewRedisBackend(metadata.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Config:   cacheConfig,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	} else {
		backend = metadata.NewMemoryBackendWithConfig(cacheConfig)
	}

	st := store.New(db, logger)
	cache := metadata.NewSchemaCache(backend, st, cfg.Cache.TTL())
	resolver := relation.NewResolver(db, cache, relation.Config{
		MaxDepth:    cfg.Engine.MaxDepth,
		MaxFrontier: cfg.Engine.MaxFrontier,
	}, logger)
	exec := executor.New(db, cache, query.NewCompiler(cache), resolver, logger)
	tracker := history.NewTracker(st, store.NewTxManager(db), logger)

	return &engine{
		db:       db,
		store:    st,
		cache:    cache,
		executor: exec,
		tracker:  tracker,
		logger:   logger,
		backend:  backend,
	}, nil
}

// Close releases the database and cache backend.
func (e *engine) Close() {
	e.backend.Close()
	e.db.Close()
	e.logger.Sync()
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
