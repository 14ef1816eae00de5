package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/idilsaglam/board/internal/config"
	"github.com/idilsaglam/board/internal/store"
	"github.com/idilsaglam/board/internal/store/jsonstore"
	"github.com/idilsaglam/board/internal/store/memstore"
	"github.com/idilsaglam/board/internal/store/redisstore"
	"github.com/idilsaglam/board/internal/store/sqlstore"
)

// openStore builds the backing store named by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "json":
		return jsonstore.New(cfg.Dir)
	case "sqlite3", "postgres":
		return sqlstore.Open(ctx, cfg.Driver, cfg.DSN, logger)
	case "redis":
		return redisstore.Open(ctx, redisstore.Config{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Database: cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}, logger)
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
