// Package lock provides named, expiring mutual exclusion for bulk purges.
package lock

import (
	"context"
	"fmt"
	"time"
)

// Lock is a held lock. Release is safe to call more than once.
type Lock interface {
	Key() string
	Release(ctx context.Context) error
}

// Manager hands out locks. Acquire reports false, without error, when the
// key is held by someone else and has not expired.
type Manager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error)
}

// BulkPurgeKey is the lock key guarding bulk purges started by a user.
func BulkPurgeKey(userID string) string {
	return fmt.Sprintf("bulk_purge_user_%s", userID)
}
