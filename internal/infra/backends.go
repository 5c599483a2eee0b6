package infra

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bizbank/bizbank/internal/config"
)

// Backends holds the shared connections. Either may be nil in development,
// in which case in-memory stores and pass-through middleware are used.
type Backends struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Open connects to the configured Postgres and Redis. Unset URLs are skipped;
// config.Load already refuses that outside development.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Backends, error) {
	var b Backends
	if cfg.DatabaseURL != "" {
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return Backends{}, err
		}
		b.DB = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if cfg.RedisURL != "" {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			b.Close(logger)
			return Backends{}, err
		}
		b.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set, idempotency and decision rate limiting are disabled")
	}
	return b, nil
}

// Close releases whatever Open connected.
func (b Backends) Close(logger *slog.Logger) {
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			logger.Warn("close redis", slog.Any("error", err))
		}
	}
	if b.DB != nil {
		b.DB.Close()
	}
}
