package store

import (
	"context"
	"errors"
	"testing"

	"github.com/AtsumiFlex/Aura-sub002/internal/config"
	"github.com/AtsumiFlex/Aura-sub002/internal/session"
)

func TestMemoryStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.Load(ctx, 0, 2); err != nil || ok {
		t.Fatalf("Load on empty store = ok %v, err %v", ok, err)
	}

	snap := session.Snapshot{SessionID: "abc", ResumeURL: "wss://resume.test", Sequence: 42, HasSeq: true}
	if err := s.Save(ctx, 1, 2, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, ok, err := s.Load(ctx, 1, 2)
	if err != nil || !ok {
		t.Fatalf("Load = ok %v, err %v", ok, err)
	}
	if got != snap {
		t.Errorf("Load = %+v, want %+v", got, snap)
	}

	if err := s.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Load(ctx, 1, 2); ok {
		t.Error("Load after Delete returned a snapshot")
	}
}

func TestMemoryStore_ShardCountMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Save(ctx, 0, 2, session.Snapshot{SessionID: "abc"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, ok, err := s.Load(ctx, 0, 4); err != nil || ok {
		t.Errorf("Load with different count = ok %v, err %v; want no snapshot", ok, err)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	if err := s.Save(ctx, 0, 1, session.Snapshot{SessionID: "abc"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Save error = %v, want context.Canceled", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := Open(ctx, config.StoreConfig{Driver: config.StoreDriverMemory}, "test", nil)
	if err != nil {
		t.Fatalf("Open memory failed: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Open memory returned %T, want *MemoryStore", s)
	}

	if _, _, err := Open(ctx, config.StoreConfig{Driver: "redis"}, "test", nil); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Open redis error = %v, want ErrUnknownDriver", err)
	}
}
