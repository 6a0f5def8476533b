package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces slot keys so the store can share a database.
const DefaultPrefix = "clientdesk:slot:"

const (
	fieldValue     = "value"
	fieldVersion   = "version"
	fieldUpdatedAt = "updated_at"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store keeps each slot in a redis hash holding the value, its version and
// the last write time in unix milliseconds.
type Store struct {
	rdb    *goredis.Client
	prefix string
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// NewStore connects to redis and checks the server answers within two
// seconds.
func NewStore(opts Options) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}

	return NewStoreWithClient(rdb, opts.Prefix), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(rdb *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *Store) Slots() store.Slots     { return s }
func (s *Store) ApplyMigrations() error { return nil }
func (s *Store) Close() error           { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) (store.Slot, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return store.Slot{}, fmt.Errorf("get slot %q: %w", key, err)
	}
	if len(fields) == 0 {
		return store.Slot{}, store.ErrNotFound
	}

	version, err := strconv.ParseInt(fields[fieldVersion], 10, 64)
	if err != nil {
		return store.Slot{}, fmt.Errorf("get slot %q: bad version: %w", key, err)
	}
	updatedAt, _ := strconv.ParseInt(fields[fieldUpdatedAt], 10, 64)

	return store.Slot{
		Key:       key,
		Value:     []byte(fields[fieldValue]),
		Version:   version,
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) (int64, error) {
	k := s.key(key)

	var incr *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.HIncrBy(ctx, k, fieldVersion, 1)
		p.HSet(ctx, k, fieldValue, value, fieldUpdatedAt, s.stamp())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("set slot %q: %w", key, err)
	}

	return incr.Val(), nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, value []byte, version int64) (int64, error) {
	k := s.key(key)

	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.HGet(ctx, k, fieldVersion).Int64()
		switch {
		case errors.Is(err, goredis.Nil):
			current = 0
		case err != nil:
			return err
		}

		if current != version {
			return store.ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.HSet(ctx, k,
				fieldValue, value,
				fieldVersion, version+1,
				fieldUpdatedAt, s.stamp(),
			)
			return nil
		})
		return err
	}, k)

	switch {
	case err == nil:
		return version + 1, nil
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, goredis.TxFailedErr):
		return 0, store.ErrVersionConflict
	default:
		return 0, fmt.Errorf("swap slot %q: %w", key, err)
	}
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete slot %q: %w", key, err)
	}
	return nil
}

func (s *Store) stamp() int64 {
	return s.now().UTC().UnixMilli()
}
