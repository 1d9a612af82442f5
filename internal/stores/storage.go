package stores

import (
	"context"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/config"
	"chatrelay/internal/persist"
	"chatrelay/internal/stores/filesystem"
	"chatrelay/internal/stores/memory"
	pebblestore "chatrelay/internal/stores/pebble"
	"chatrelay/internal/stores/postgres"
	redisstore "chatrelay/internal/stores/redis"
	s3store "chatrelay/internal/stores/s3"
	"chatrelay/internal/stores/sqlite"
)

// Open returns the durable store selected by STORAGE_TYPE.
func Open(ctx context.Context, cfg *config.Config) (persist.Store, error) {
	ev := log.Info().Str("storage", cfg.StorageType)

	var (
		store persist.Store
		err   error
	)
	switch cfg.StorageType {
	case "filesystem":
		ev = ev.Str("path", cfg.LogPath)
		store, err = filesystem.Open(cfg.LogPath, cfg.LogMaxBytes)
	case "pebble":
		ev = ev.Str("dir", cfg.PebbleDir)
		store, err = pebblestore.Open(cfg.PebbleDir)
	case "sqlite":
		ev = ev.Str("dsn", cfg.DataSourceName)
		store, err = sqlite.Open(ctx, cfg.DataSourceName)
	case "redis":
		ev = ev.Str("addr", cfg.RedisAddr)
		store, err = redisstore.Open(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	case "postgres":
		store, err = postgres.Open(ctx, cfg.DatabaseURL)
	case "s3":
		ev = ev.Str("bucket", cfg.S3Bucket)
		store, err = s3store.Open(ctx, cfg.S3Bucket, cfg.S3Prefix)
	default:
		ev = log.Info().Str("storage", "in-memory")
		store = memory.New()
	}
	if err != nil {
		return nil, err
	}
	ev.Msg("use storage")
	return store, nil
}
