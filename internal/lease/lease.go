// Package lease provides per-session single-writer tokens.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHeld is returned when another holder owns the lease.
var ErrHeld = errors.New("lease held")

// Lease is an acquired token. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Leaser hands out expiring exclusive leases by key.
type Leaser interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryLeaser keeps leases in process memory. It only serializes turns
// within one instance.
type MemoryLeaser struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryLeaser creates an in-process leaser.
func NewMemoryLeaser() *MemoryLeaser {
	return &MemoryLeaser{entries: map[string]memoryEntry{}, now: time.Now}
}

// Acquire takes the lease for key or returns ErrHeld.
func (m *MemoryLeaser) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	m.entries[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &memoryLease{owner: m, key: key, token: token}, nil
}

type memoryLease struct {
	owner *MemoryLeaser
	key   string
	token string
}

func (l *memoryLease) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if e, ok := l.owner.entries[l.key]; ok && e.token == l.token {
		delete(l.owner.entries, l.key)
	}
	return nil
}
