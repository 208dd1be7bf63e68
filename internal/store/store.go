package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AtsumiFlex/Aura-sub002/internal/config"
	"github.com/AtsumiFlex/Aura-sub002/internal/session"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown store driver")

// SessionStore loads and saves per-shard session snapshots.
type SessionStore interface {
	// Load returns the snapshot for shardID if one was saved under the same
	// shardCount.
	Load(ctx context.Context, shardID, shardCount int) (session.Snapshot, bool, error)
	Save(ctx context.Context, shardID, shardCount int, snap session.Snapshot) error
	Delete(ctx context.Context, shardID int) error
}

// Open builds the store selected by cfg. The returned close function
// releases any underlying connections.
func Open(ctx context.Context, cfg config.StoreConfig, instanceID string, logger *slog.Logger) (SessionStore, func(), error) {
	switch cfg.Driver {
	case "", config.StoreDriverMemory:
		return NewMemoryStore(), func() {}, nil
	case config.StoreDriverPostgres:
		pool, err := Connect(ctx, cfg.Postgres, "gateway-"+instanceID)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		s := NewPostgresStore(pool, instanceID, logger)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

type memoryRecord struct {
	count int
	snap  session.Snapshot
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[int]memoryRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int]memoryRecord)}
}

// Load implements SessionStore.
func (m *MemoryStore) Load(ctx context.Context, shardID, shardCount int) (session.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return session.Snapshot{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[shardID]
	if !ok || rec.count != shardCount {
		return session.Snapshot{}, false, nil
	}
	return rec.snap, true, nil
}

// Save implements SessionStore.
func (m *MemoryStore) Save(ctx context.Context, shardID, shardCount int, snap session.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[shardID] = memoryRecord{count: shardCount, snap: snap}
	return nil
}

// Delete implements SessionStore.
func (m *MemoryStore) Delete(ctx context.Context, shardID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, shardID)
	return nil
}

// Len returns the number of stored snapshots.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
