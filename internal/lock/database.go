package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/formentries/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseManager keeps locks in the bulk_locks table so every server
// process sharing the database sees the same holders.
type DatabaseManager struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Manager = (*DatabaseManager)(nil)

// NewDatabaseManager returns a manager over db. bulk_locks must be migrated.
func NewDatabaseManager(db *gorm.DB) *DatabaseManager {
	return &DatabaseManager{db: db, now: time.Now}
}

// Acquire inserts the lock row, or takes over a row whose holder expired.
func (m *DatabaseManager) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	now := m.now().UTC()
	owner := uuid.NewString()
	row := models.BulkLock{LockKey: key, Owner: owner, ExpiresAt: now.Add(ttl)}

	result := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return &databaseLock{m: m, key: key, owner: owner}, true, nil
	}

	result = m.db.WithContext(ctx).Model(&models.BulkLock{}).
		Where("lock_key = ? AND expires_at <= ?", key, now).
		Updates(map[string]any{"owner": owner, "expires_at": now.Add(ttl)})
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return &databaseLock{m: m, key: key, owner: owner}, true, nil
	}
	return nil, false, nil
}

type databaseLock struct {
	m     *DatabaseManager
	key   string
	owner string
}

func (l *databaseLock) Key() string { return l.key }

// Release deletes the row if this lock still owns it.
func (l *databaseLock) Release(ctx context.Context) error {
	return l.m.db.WithContext(ctx).
		Where("lock_key = ? AND owner = ?", l.key, l.owner).
		Delete(&models.BulkLock{}).Error
}
