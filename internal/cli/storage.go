package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/moments/internal/config"
	"github.com/aretw0/moments/pkg/adapters/file"
	"github.com/aretw0/moments/pkg/adapters/memory"
	"github.com/aretw0/moments/pkg/adapters/redis"
	"github.com/aretw0/moments/pkg/adapters/sqlite"
	"github.com/aretw0/moments/pkg/persistence/middleware"
	"github.com/aretw0/moments/pkg/ports"
)

// Backend is an opened storage with everything that must be released with it.
type Backend struct {
	Storage ports.Storage
	// Locker is set when the backend can serialize writes across instances.
	Locker ports.DistributedLocker
	close  func() error
}

// Close releases the backend connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenStorage builds the configured storage adapter wrapped in its middleware.
// Encryption is the outermost layer so compression sees plain scenes.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}
	switch cfg.Backend {
	case config.BackendMemory, "":
		b.Storage = memory.NewStore()
	case config.BackendFile:
		b.Storage = file.New(cfg.Path)
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		b.Storage, b.close = store, store.Close
	case config.BackendRedis:
		opts := []redis.Option{redis.WithTTL(cfg.Redis.TTL)}
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Redis.Prefix))
		}
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		if err := store.Client().Ping(ctx).Err(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		b.Storage, b.close = store, store.Close
		if cfg.Redis.Lock {
			b.Locker = redis.NewLocker(store.Client(), cfg.Redis.Prefix)
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	var mws []middleware.Middleware
	active, fallback, err := cfg.Encryption.Keys()
	if err != nil {
		return nil, errors.Join(err, b.Close())
	}
	if active != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	if cfg.Compression.Enabled {
		mws = append(mws, middleware.NewCompressionMiddleware(cfg.Compression.Threshold))
	}
	b.Storage = middleware.Chain(b.Storage, mws...)

	logger.Debug("Storage ready",
		"backend", cfg.Backend,
		"encrypted", active != nil,
		"compressed", cfg.Compression.Enabled,
		"locking", b.Locker != nil,
	)
	return b, nil
}
