// Package factory constructs the configured vector store backend.
package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	dbredis "github.com/kailas-cloud/ragstream/internal/db/redis"
	"github.com/kailas-cloud/ragstream/internal/repository/vector"
	pgvstore "github.com/kailas-cloud/ragstream/internal/repository/vector/pgvector"
	redisstore "github.com/kailas-cloud/ragstream/internal/repository/vector/redis"
)

// Supported backend names.
const (
	BackendRedis    = "redis"
	BackendPgvector = "pgvector"
)

// Config selects and parameterizes the vector store backend.
type Config struct {
	Backend    string
	Collection string
	Dim        int

	// redis backend
	RedisAddrs    []string
	RedisUsername string
	RedisPassword string
	RedisDB       int

	// pgvector backend
	PostgresDSN string
	Table       string
}

// New builds the configured adapter. Initialization failures degrade to the
// Unavailable adapter instead of failing startup, so the service can come up
// and report a typed storage error per request. The returned cleanup releases
// backend connections and is always safe to call.
func New(ctx context.Context, cfg Config, log *zap.Logger) (vector.Adapter, func()) {
	noop := func() {}

	switch cfg.Backend {
	case BackendRedis:
		store, err := dbredis.NewStore(dbredis.Config{
			Addrs:    cfg.RedisAddrs,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn("redis vector store unavailable", zap.Error(err))
			return vector.NewUnavailable(BackendRedis, err,
				"check that Redis is running and vector_store.redis.addrs is set"), noop
		}

		adapter, err := redisstore.New(ctx, store, cfg.Collection, cfg.Dim)
		if err != nil {
			store.Close()
			log.Warn("redis vector index init failed", zap.Error(err))
			return vector.NewUnavailable(BackendRedis, err,
				"check that the Redis server has the search module enabled"), noop
		}

		log.Info("vector store ready",
			zap.String("backend", BackendRedis),
			zap.String("collection", cfg.Collection))
		return adapter, store.Close

	case BackendPgvector:
		adapter, err := pgvstore.Open(ctx, cfg.PostgresDSN, cfg.Table, cfg.Dim)
		if err != nil {
			log.Warn("pgvector store unavailable", zap.Error(err))
			return vector.NewUnavailable(BackendPgvector, err,
				"check that PostgreSQL is running and the pgvector extension is installed"), noop
		}

		log.Info("vector store ready",
			zap.String("backend", BackendPgvector),
			zap.String("table", cfg.Table))
		return adapter, func() { adapter.Close() }

	default:
		err := fmt.Errorf("unknown vector store backend %q", cfg.Backend)
		log.Warn("vector store unavailable", zap.Error(err))
		return vector.NewUnavailable(cfg.Backend, err,
			"set vector_store.backend to redis or pgvector"), noop
	}
}
