package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrVersionConflict = errors.New("store: version conflict")
)

// Store is the root of a local persistence backend. Drivers (sqlite, redis,
// memory) implement it and expose their key-value surface through Slots.
type Store interface {
	Slots() Slots

	// ApplyMigrations brings the backend schema up to date. Schemaless
	// drivers treat it as a no-op.
	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backend is still reachable.
	Ping(ctx context.Context) error
}

// Slot is a stored value together with its version token. Version starts at
// 1 on first write and grows by one on every write after that.
type Slot struct {
	Key       string
	Value     []byte
	Version   int64
	UpdatedAt time.Time
}

// Slots is a persisted key-value surface with optimistic concurrency.
type Slots interface {
	// Get returns ErrNotFound for keys that were never written or were
	// deleted.
	Get(ctx context.Context, key string) (Slot, error)

	// Set writes value unconditionally and returns the new version.
	Set(ctx context.Context, key string, value []byte) (int64, error)

	// CompareAndSwap writes value only if the slot is still at version. A
	// version of 0 means the slot must not exist yet. It returns the new
	// version, or ErrVersionConflict when someone else wrote first.
	CompareAndSwap(ctx context.Context, key string, value []byte, version int64) (int64, error)

	// Delete removes the slot. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
