package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store"
)

// Store keeps slots in process memory. Nothing survives a restart.
type Store struct {
	mu    sync.Mutex
	slots map[string]store.Slot
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		slots: make(map[string]store.Slot),
		now:   time.Now,
	}
}

func (s *Store) Slots() store.Slots         { return s }
func (s *Store) ApplyMigrations() error     { return nil }
func (s *Store) Close() error               { return nil }
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Get(ctx context.Context, key string) (store.Slot, error) {
	if err := ctx.Err(); err != nil {
		return store.Slot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[key]
	if !ok {
		return store.Slot{}, store.ErrNotFound
	}

	slot.Value = bytes.Clone(slot.Value)
	return slot, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(key, value, s.slots[key].Version), nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, value []byte, version int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slots[key].Version != version {
		return 0, store.ErrVersionConflict
	}

	return s.write(key, value, version), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.slots, key)
	return nil
}

// write must be called with mu held.
func (s *Store) write(key string, value []byte, current int64) int64 {
	next := current + 1
	s.slots[key] = store.Slot{
		Key:       key,
		Value:     bytes.Clone(value),
		Version:   next,
		UpdatedAt: s.now().UTC(),
	}
	return next
}
