package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/canonica-labs/rhive/internal/observability"
)

// MemoryJournal keeps entries in process. It is used by tests and when no
// journal DSN is configured.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []observability.OperationEntry

	unavailable bool
}

// NewMemoryJournal creates an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// SetUnavailable makes every call fail, to simulate a lost database.
func (j *MemoryJournal) SetUnavailable(v bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.unavailable = v
}

// Record appends one entry.
func (j *MemoryJournal) Record(ctx context.Context, entry observability.OperationEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.unavailable {
		return fmt.Errorf("storage: journal unavailable (simulated)")
	}
	j.entries = append(j.entries, entry)
	return nil
}

// List returns the most recent entries, newest first.
func (j *MemoryJournal) List(ctx context.Context, limit int) ([]observability.OperationEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.unavailable {
		return nil, fmt.Errorf("storage: journal unavailable (simulated)")
	}

	out := []observability.OperationEntry{}
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.entries[i])
	}
	return out, nil
}

// CheckConnectivity fails only while the journal is marked unavailable.
func (j *MemoryJournal) CheckConnectivity(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.unavailable {
		return fmt.Errorf("storage: journal unavailable (simulated)")
	}
	return nil
}
