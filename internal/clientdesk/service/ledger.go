package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/clientdesk/internal/clientdesk/store"
	"github.com/aussiebroadwan/clientdesk/pkg/idx"
)

// ResetLedgerKey is the slot holding the progress of an unfinished reset.
const ResetLedgerKey = "admin_reset_progress"

// ResetProgress is what survives between reset attempts: which users were
// already deleted, which deletions failed, and whether every deletion of
// the latest attempt was confirmed.
type ResetProgress struct {
	RunID                 string    `json:"runId"`
	Deleted               []string  `json:"deleted"`
	Failed                []string  `json:"failed"`
	AllDeletionsConfirmed bool      `json:"allDeletionsConfirmed"`
	StartedAt             time.Time `json:"startedAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// IsZero reports whether no run is recorded.
func (p ResetProgress) IsZero() bool {
	return p.RunID == ""
}

// recordDeleted moves id into the deleted set.
func (p *ResetProgress) recordDeleted(id string) {
	p.Failed = slices.DeleteFunc(p.Failed, func(f string) bool { return f == id })
	if !slices.Contains(p.Deleted, id) {
		p.Deleted = append(p.Deleted, id)
	}
}

func (p *ResetProgress) recordFailed(id string) {
	if !slices.Contains(p.Failed, id) {
		p.Failed = append(p.Failed, id)
	}
}

// ResetLedger persists ResetProgress. Load returns the zero value when
// nothing is recorded.
type ResetLedger interface {
	Load(ctx context.Context) (ResetProgress, error)
	Save(ctx context.Context, p ResetProgress) error
	Clear(ctx context.Context) error
}

// SlotLedger keeps the progress as JSON in a store slot.
type SlotLedger struct {
	Slots store.Slots
	Key   string
}

func (l SlotLedger) key() string {
	if l.Key == "" {
		return ResetLedgerKey
	}
	return l.Key
}

func (l SlotLedger) Load(ctx context.Context) (ResetProgress, error) {
	slot, err := l.Slots.Get(ctx, l.key())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ResetProgress{}, nil
	case err != nil:
		return ResetProgress{}, fmt.Errorf("read reset ledger: %w", err)
	}

	var p ResetProgress
	if err := json.Unmarshal(slot.Value, &p); err != nil {
		return ResetProgress{}, fmt.Errorf("decode reset ledger: %w", err)
	}
	if !p.IsZero() {
		if _, err := idx.Parse(p.RunID); err != nil {
			return ResetProgress{}, fmt.Errorf("decode reset ledger: run id %q: %w", p.RunID, err)
		}
	}
	return p, nil
}

func (l SlotLedger) Save(ctx context.Context, p ResetProgress) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode reset ledger: %w", err)
	}
	if _, err := l.Slots.Set(ctx, l.key(), payload); err != nil {
		return fmt.Errorf("write reset ledger: %w", err)
	}
	return nil
}

func (l SlotLedger) Clear(ctx context.Context) error {
	if err := l.Slots.Delete(ctx, l.key()); err != nil {
		return fmt.Errorf("clear reset ledger: %w", err)
	}
	return nil
}

// memoryLedger is used when no store is configured. Progress then only
// lives as long as the process.
type memoryLedger struct {
	mu sync.Mutex
	p  ResetProgress
}

func (m *memoryLedger) Load(context.Context) (ResetProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneProgress(m.p), nil
}

func (m *memoryLedger) Save(_ context.Context, p ResetProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p = cloneProgress(p)
	return nil
}

func (m *memoryLedger) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p = ResetProgress{}
	return nil
}

func cloneProgress(p ResetProgress) ResetProgress {
	p.Deleted = slices.Clone(p.Deleted)
	p.Failed = slices.Clone(p.Failed)
	return p
}
