// Package storetest holds the behaviour every store.Slots driver must share.
package storetest

import (
	"sync"
	"testing"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store"
	"github.com/stretchr/testify/require"
)

// RunSlots exercises a Slots implementation. newSlots must return an empty
// surface each time it is called.
func RunSlots(t *testing.T, newSlots func(t *testing.T) store.Slots) {
	t.Helper()

	t.Run("get missing", func(t *testing.T) {
		slots := newSlots(t)

		_, err := slots.Get(t.Context(), "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		slots := newSlots(t)
		ctx := t.Context()

		v1, err := slots.Set(ctx, "k", []byte(`[1]`))
		require.NoError(t, err)
		require.Equal(t, int64(1), v1)

		v2, err := slots.Set(ctx, "k", []byte(`[1,2]`))
		require.NoError(t, err)
		require.Equal(t, int64(2), v2)

		got, err := slots.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "k", got.Key)
		require.Equal(t, []byte(`[1,2]`), got.Value)
		require.Equal(t, int64(2), got.Version)
		require.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("compare and swap", func(t *testing.T) {
		slots := newSlots(t)
		ctx := t.Context()

		// Version 0 creates
		v, err := slots.CompareAndSwap(ctx, "k", []byte("a"), 0)
		require.NoError(t, err)
		require.Equal(t, int64(1), v)

		// Creating twice conflicts
		_, err = slots.CompareAndSwap(ctx, "k", []byte("b"), 0)
		require.ErrorIs(t, err, store.ErrVersionConflict)

		// Stale version conflicts and leaves the value alone
		_, err = slots.CompareAndSwap(ctx, "k", []byte("c"), 7)
		require.ErrorIs(t, err, store.ErrVersionConflict)

		got, err := slots.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("a"), got.Value)

		v, err = slots.CompareAndSwap(ctx, "k", []byte("d"), got.Version)
		require.NoError(t, err)
		require.Equal(t, int64(2), v)

		got, err = slots.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("d"), got.Value)
		require.Equal(t, int64(2), got.Version)
	})

	t.Run("delete", func(t *testing.T) {
		slots := newSlots(t)
		ctx := t.Context()

		_, err := slots.Set(ctx, "k", []byte("x"))
		require.NoError(t, err)

		require.NoError(t, slots.Delete(ctx, "k"))
		require.NoError(t, slots.Delete(ctx, "k"), "deleting twice is fine")

		_, err = slots.Get(ctx, "k")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent swaps lose nothing", func(t *testing.T) {
		slots := newSlots(t)
		ctx := t.Context()

		const writers = 8

		var wg sync.WaitGroup
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					cur, err := slots.Get(ctx, "counter")
					var version int64
					var n int
					if err == nil {
						version = cur.Version
						n = len(cur.Value)
					}
					next := make([]byte, n+1)
					for i := range next {
						next[i] = 'x'
					}
					if _, err := slots.CompareAndSwap(ctx, "counter", next, version); err == nil {
						return
					}
				}
			}()
		}
		wg.Wait()

		got, err := slots.Get(ctx, "counter")
		require.NoError(t, err)
		require.Len(t, got.Value, writers)
		require.Equal(t, int64(writers), got.Version)
	})
}
