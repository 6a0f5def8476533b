package service

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store/drivers/memory"
	"github.com/aussiebroadwan/clientdesk/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestResetProgress(t *testing.T) {
	t.Parallel()

	var p ResetProgress
	require.True(t, p.IsZero())

	p.recordFailed("u1")
	p.recordFailed("u1")
	p.recordDeleted("u2")
	require.Equal(t, []string{"u1"}, p.Failed)

	// A later success clears the earlier failure.
	p.recordDeleted("u1")
	p.recordDeleted("u1")
	require.Empty(t, p.Failed)
	require.Equal(t, []string{"u2", "u1"}, p.Deleted)
}

func TestLedgers(t *testing.T) {
	t.Parallel()

	ledgers := map[string]func() ResetLedger{
		"slot":   func() ResetLedger { return SlotLedger{Slots: memory.NewStore().Slots()} },
		"memory": func() ResetLedger { return &memoryLedger{} },
	}

	for name, newLedger := range ledgers {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ledger := newLedger()

			p, err := ledger.Load(t.Context())
			require.NoError(t, err)
			require.True(t, p.IsZero())

			started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			want := ResetProgress{
				RunID:                 "01J00000000000000000000000",
				Deleted:               []string{"u1"},
				Failed:                []string{"u2"},
				AllDeletionsConfirmed: false,
				StartedAt:             started,
				UpdatedAt:             started.Add(time.Second),
			}
			require.NoError(t, ledger.Save(t.Context(), want))

			// Mutating what was saved must not leak into the ledger.
			want.Deleted[0] = "changed"

			got, err := ledger.Load(t.Context())
			require.NoError(t, err)
			require.Equal(t, "01J00000000000000000000000", got.RunID)
			require.Equal(t, []string{"u1"}, got.Deleted)
			require.Equal(t, []string{"u2"}, got.Failed)
			require.True(t, started.Equal(got.StartedAt))

			require.NoError(t, ledger.Clear(t.Context()))
			got, err = ledger.Load(t.Context())
			require.NoError(t, err)
			require.True(t, got.IsZero())
		})
	}
}

func TestSlotLedgerKey(t *testing.T) {
	t.Parallel()

	slots := memory.NewStore().Slots()
	require.NoError(t, SlotLedger{Slots: slots}.Save(t.Context(), ResetProgress{RunID: "run"}))

	_, err := slots.Get(t.Context(), ResetLedgerKey)
	require.NoError(t, err)

	custom := SlotLedger{Slots: slots, Key: "other"}
	p, err := custom.Load(t.Context())
	require.NoError(t, err)
	require.True(t, p.IsZero())
}

func TestSlotLedgerCorrupt(t *testing.T) {
	t.Parallel()

	slots := memory.NewStore().Slots()
	_, err := slots.Set(t.Context(), ResetLedgerKey, []byte("not json"))
	require.NoError(t, err)

	_, err = SlotLedger{Slots: slots}.Load(t.Context())
	require.ErrorContains(t, err, "decode reset ledger")
}

func TestSlotLedgerRejectsForeignRunID(t *testing.T) {
	t.Parallel()

	slots := memory.NewStore().Slots()
	_, err := slots.Set(t.Context(), ResetLedgerKey, []byte(`{"runId":"not-a-ulid","deleted":["u1"]}`))
	require.NoError(t, err)

	_, err = SlotLedger{Slots: slots}.Load(t.Context())
	require.ErrorIs(t, err, idx.ErrInvalid)
}
