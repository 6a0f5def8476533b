package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/domain"
	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store"
	"github.com/aussiebroadwan/clientdesk/pkg/slogx"
)

// OfflineClientsKey is the slot holding the JSON array of offline clients.
const OfflineClientsKey = "offline_clients"

// DefaultLocalLatency is how long a local operation takes to settle.
const DefaultLocalLatency = 300 * time.Millisecond

// maxSwapAttempts bounds retries when another process wins the write race.
const maxSwapAttempts = 5

var ErrLocalStoreUnavailable = errors.New("local store unavailable")

// offlineClients is the read-modify-write layer over the offline slot. The
// mutex makes this process a single writer; the slot version catches
// writers in other processes.
type offlineClients struct {
	mu      sync.Mutex
	slots   store.Slots
	latency time.Duration
	now     func() time.Time
}

// settle waits out the configured latency.
func (o *offlineClients) settle(ctx context.Context) error {
	if o.latency <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(o.latency)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// load reads the slot. A missing slot reads as an empty list at version 0.
func (o *offlineClients) load(ctx context.Context) ([]domain.Client, int64, error) {
	slot, err := o.slots.Get(ctx, OfflineClientsKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return []domain.Client{}, 0, nil
	case err != nil:
		return nil, 0, fmt.Errorf("read %s: %w", OfflineClientsKey, err)
	}

	clients := []domain.Client{}
	if len(slot.Value) > 0 {
		if err := json.Unmarshal(slot.Value, &clients); err != nil {
			return nil, 0, fmt.Errorf("decode %s: %w", OfflineClientsKey, err)
		}
	}

	return clients, slot.Version, nil
}

// list returns the stored records that carry an id.
func (o *offlineClients) list(ctx context.Context) ([]domain.Client, error) {
	if err := o.settle(ctx); err != nil {
		return nil, err
	}

	clients, _, err := o.load(ctx)
	if err != nil {
		return nil, err
	}

	kept := clients[:0]
	for _, c := range clients {
		if c.ID != "" {
			kept = append(kept, c)
		}
	}
	if dropped := len(clients) - len(kept); dropped > 0 {
		slogx.FromContext(ctx).Warn("dropped offline clients without id", slog.Int("count", dropped))
	}

	return kept, nil
}

// mutate applies fn to the stored list and commits the result when fn
// reports a change. fn may run more than once if the slot moves underneath
// it, so it must derive everything from its argument.
func (o *offlineClients) mutate(ctx context.Context, fn func([]domain.Client) ([]domain.Client, bool)) error {
	if err := o.settle(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for attempt := 1; ; attempt++ {
		clients, version, err := o.load(ctx)
		if err != nil {
			return err
		}

		next, changed := fn(clients)
		if !changed {
			return nil
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode %s: %w", OfflineClientsKey, err)
		}

		_, err = o.slots.CompareAndSwap(ctx, OfflineClientsKey, payload, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) || attempt >= maxSwapAttempts {
			return fmt.Errorf("write %s: %w", OfflineClientsKey, err)
		}

		slogx.FromContext(ctx).Debug("offline clients changed underneath, retrying",
			slog.Int("attempt", attempt),
		)
	}
}

// replace overwrites the slot with clients.
func (o *offlineClients) replace(ctx context.Context, clients []domain.Client) error {
	payload, err := json.Marshal(clients)
	if err != nil {
		return fmt.Errorf("encode %s: %w", OfflineClientsKey, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.slots.Set(ctx, OfflineClientsKey, payload); err != nil {
		return fmt.Errorf("write %s: %w", OfflineClientsKey, err)
	}
	return nil
}

func (o *offlineClients) delete(ctx context.Context, id string) (domain.Confirmation, error) {
	err := o.mutate(ctx, func(clients []domain.Client) ([]domain.Client, bool) {
		kept := make([]domain.Client, 0, len(clients))
		for _, c := range clients {
			if c.ID != id {
				kept = append(kept, c)
			}
		}
		return kept, len(kept) != len(clients)
	})
	if err != nil {
		return domain.Confirmation{}, err
	}

	return domain.Confirmation{Message: "Client deleted successfully (offline mode)"}, nil
}

func (o *offlineClients) toggleBan(ctx context.Context, id string) (domain.BanResult, error) {
	var result domain.BanResult

	err := o.mutate(ctx, func(clients []domain.Client) ([]domain.Client, bool) {
		for i := range clients {
			if clients[i].ID != id {
				continue
			}

			clients[i].IsBanned = !clients[i].IsBanned
			clients[i].LastUpdated = o.stamp()

			state := "unbanned"
			if clients[i].IsBanned {
				state = "banned"
			}
			result = domain.BanResult{
				Message:  fmt.Sprintf("Client %s successfully (offline mode)", state),
				IsBanned: clients[i].IsBanned,
			}
			return clients, true
		}

		result = domain.BanResult{Message: "Client ban status updated (offline mode)", IsBanned: true}
		return clients, false
	})
	if err != nil {
		return domain.BanResult{}, err
	}

	return result, nil
}

func (o *offlineClients) unban(ctx context.Context, id string) (domain.BanResult, error) {
	var result domain.BanResult

	err := o.mutate(ctx, func(clients []domain.Client) ([]domain.Client, bool) {
		for i := range clients {
			if clients[i].ID != id {
				continue
			}

			clients[i].IsBanned = false
			clients[i].LastUpdated = o.stamp()
			result = domain.BanResult{Message: "Client unbanned successfully (offline mode)", IsBanned: false}
			return clients, true
		}

		result = domain.BanResult{Message: "Client unbanned (offline mode)", IsBanned: false}
		return clients, false
	})
	if err != nil {
		return domain.BanResult{}, err
	}

	return result, nil
}

func (o *offlineClients) stamp() *time.Time {
	t := o.now().UTC()
	return &t
}
