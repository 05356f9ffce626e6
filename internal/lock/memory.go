package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryManager keeps locks in process memory. It is only correct when a
// single server process handles every request.
type MemoryManager struct {
	mu   sync.Mutex
	held map[string]memoryHold
	now  func() time.Time
}

type memoryHold struct {
	owner     string
	expiresAt time.Time
}

var _ Manager = (*MemoryManager)(nil)

// NewMemoryManager returns an empty in-process manager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{held: map[string]memoryHold{}, now: time.Now}
}

// Acquire implements Manager.
func (m *MemoryManager) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if h, ok := m.held[key]; ok && now.Before(h.expiresAt) {
		return nil, false, nil
	}
	owner := uuid.NewString()
	m.held[key] = memoryHold{owner: owner, expiresAt: now.Add(ttl)}
	return &memoryLock{m: m, key: key, owner: owner}, true, nil
}

type memoryLock struct {
	m     *MemoryManager
	key   string
	owner string
}

func (l *memoryLock) Key() string { return l.key }

// Release drops the lock unless it expired and was taken by another owner.
func (l *memoryLock) Release(context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if h, ok := l.m.held[l.key]; ok && h.owner == l.owner {
		delete(l.m.held, l.key)
	}
	return nil
}
