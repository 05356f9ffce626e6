package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/localnerve/formentries/internal/config"
	"github.com/localnerve/formentries/internal/lock"
	"github.com/localnerve/formentries/internal/models"
	"github.com/localnerve/formentries/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DBType:         "sqlite",
		DBDatabase:     ":memory:",
		ChunkSize:      10,
		ChunkSizeMedia: 10,
		LockTTL:        time.Minute,
		LockBackend:    "database",
		MediaDriver:    "local",
		MediaRoot:      t.TempDir(),
		MediaDeletable: []string{"photo", "audio", "video"},
	}
}

func TestNewLocal(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	cfg := testConfig(t)

	a, err := New(ctx, cfg, db, nil)
	require.NoError(t, err)
	assert.IsType(t, &lock.DatabaseManager{}, a.Locks)
	assert.Equal(t, cfg.MediaDeletable, a.Media.Deletable())

	// the wired services share one store: a purge chunk drains files
	// written under the local media root
	project := testutil.SeedProject(t, db, "proj", "form-0")
	dir := filepath.Join(cfg.MediaRoot, "audio", "proj")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x_1.mp4"), []byte("mp4"), 0o644))

	require.NoError(t, a.Repo.SetProjectStatus(ctx, project.ID, models.ProjectLocked))
	project.Status = models.ProjectLocked

	removal, err := a.Purge.PurgeMediaChunk(ctx, project, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removal.Files())
	_, err = os.Stat(filepath.Join(dir, "x_1.mp4"))
	assert.True(t, os.IsNotExist(err))
}

func TestNewLockManager(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testConfig(t)

	cfg.LockBackend = "memory"
	m, err := NewLockManager(cfg, db)
	require.NoError(t, err)
	assert.IsType(t, &lock.MemoryManager{}, m)

	cfg.LockBackend = "redis"
	_, err = NewLockManager(cfg, db)
	assert.Error(t, err)
}

func TestNewMediaStoreUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.MediaDriver = "ftp"
	_, err := NewMediaStore(context.Background(), cfg)
	assert.Error(t, err)
}
