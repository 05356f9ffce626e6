// Package app assembles the services shared by the HTTP server and the
// purge command from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/localnerve/formentries/internal/config"
	"github.com/localnerve/formentries/internal/lifecycle"
	"github.com/localnerve/formentries/internal/lock"
	"github.com/localnerve/formentries/internal/media"
	"github.com/localnerve/formentries/internal/metrics"
	"github.com/localnerve/formentries/internal/purge"
	"github.com/localnerve/formentries/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// App holds the wired services.
type App struct {
	Repo    *repository.Repository
	Media   *media.Store
	Locks   lock.Manager
	Engine  *lifecycle.Engine
	Purge   *purge.Coordinator
	Metrics *metrics.Metrics
}

// New wires repository, media store, lock manager, lifecycle engine and
// purge coordinator. m may be nil.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, m *metrics.Metrics) (*App, error) {
	store, err := NewMediaStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	locks, err := NewLockManager(cfg, db)
	if err != nil {
		return nil, err
	}

	repo := repository.New(db)
	return &App{
		Repo:   repo,
		Media:  store,
		Locks:  locks,
		Engine: lifecycle.New(repo, store, m),
		Purge: purge.New(repo, store, locks, purge.Config{
			ChunkSize:      cfg.ChunkSize,
			ChunkSizeMedia: cfg.ChunkSizeMedia,
			LockTTL:        cfg.LockTTL,
		}, m),
		Metrics: m,
	}, nil
}

// NewMediaStore opens one disk per deletable bucket on the configured driver.
func NewMediaStore(ctx context.Context, cfg *config.Config) (*media.Store, error) {
	var disks map[string]media.Disk

	switch cfg.MediaDriver {
	case "local":
		var err error
		if disks, err = media.NewLocalDisks(cfg.MediaRoot, cfg.MediaDeletable); err != nil {
			return nil, err
		}
	case "s3":
		client, err := media.NewS3Client(ctx, media.S3Options{
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		disks = media.NewS3Disks(client, cfg.S3Bucket, cfg.MediaDeletable)
	default:
		return nil, fmt.Errorf("unsupported media driver: %s", cfg.MediaDriver)
	}

	log.Info().
		Str("driver", cfg.MediaDriver).
		Strs("buckets", cfg.MediaDeletable).
		Msg("media store ready")
	return media.NewStore(disks, cfg.MediaDeletable)
}

// NewLockManager returns the configured bulk purge lock backend. The
// memory backend only serializes requests within one process.
func NewLockManager(cfg *config.Config, db *gorm.DB) (lock.Manager, error) {
	switch cfg.LockBackend {
	case "database":
		return lock.NewDatabaseManager(db), nil
	case "memory":
		log.Warn().Msg("bulk purge locks are process local")
		return lock.NewMemoryManager(), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend: %s", cfg.LockBackend)
	}
}
