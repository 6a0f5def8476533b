package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store"
)

const (
	getSlot = `SELECT value, version, updated_at FROM slots WHERE key = ?`

	upsertSlot = `
INSERT INTO slots (key, value, version, updated_at) VALUES (?, ?, 1, ?)
ON CONFLICT (key) DO UPDATE SET
    value      = excluded.value,
    version    = slots.version + 1,
    updated_at = excluded.updated_at
RETURNING version`

	insertSlot = `
INSERT INTO slots (key, value, version, updated_at) VALUES (?, ?, 1, ?)
ON CONFLICT (key) DO NOTHING`

	swapSlot = `
UPDATE slots SET value = ?, version = version + 1, updated_at = ?
WHERE key = ? AND version = ?`

	deleteSlot = `DELETE FROM slots WHERE key = ?`
)

type slotsRepo struct {
	db  *sql.DB
	now func() time.Time
}

func (r *slotsRepo) Get(ctx context.Context, key string) (store.Slot, error) {
	var (
		value     []byte
		version   int64
		updatedAt int64
	)

	err := r.db.QueryRowContext(ctx, getSlot, key).Scan(&value, &version, &updatedAt)
	if err != nil {
		return store.Slot{}, mapNotFound(err)
	}

	return store.Slot{
		Key:       key,
		Value:     value,
		Version:   version,
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, nil
}

func (r *slotsRepo) Set(ctx context.Context, key string, value []byte) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx, upsertSlot, key, value, r.stamp()).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("set slot %q: %w", key, err)
	}
	return version, nil
}

func (r *slotsRepo) CompareAndSwap(ctx context.Context, key string, value []byte, version int64) (int64, error) {
	var (
		res sql.Result
		err error
	)

	if version == 0 {
		res, err = r.db.ExecContext(ctx, insertSlot, key, value, r.stamp())
	} else {
		res, err = r.db.ExecContext(ctx, swapSlot, value, r.stamp(), key, version)
	}
	if err != nil {
		return 0, fmt.Errorf("swap slot %q: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("swap slot %q: %w", key, err)
	}
	if n == 0 {
		return 0, store.ErrVersionConflict
	}

	return version + 1, nil
}

func (r *slotsRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, deleteSlot, key); err != nil {
		return fmt.Errorf("delete slot %q: %w", key, err)
	}
	return nil
}

func (r *slotsRepo) stamp() int64 {
	return r.now().UTC().UnixMilli()
}
