// Package storage persists the operation journal: one row per write, read
// or DDL call, as produced by the hive package.
package storage

import (
	"context"

	"github.com/canonica-labs/rhive/internal/observability"
)

// DefaultListLimit is the number of entries List returns when limit <= 0.
const DefaultListLimit = 20

// Journal stores operation entries.
// All implementations must be:
// - Thread-safe
// - Context-aware (respecting cancellation/timeout)
//
// Every Journal is also an observability.Recorder.
type Journal interface {
	// Record stores one entry. Invalid entries are rejected.
	Record(ctx context.Context, entry observability.OperationEntry) error

	// List returns the most recent entries, newest first.
	// Returns an empty slice (not nil) when the journal is empty.
	List(ctx context.Context, limit int) ([]observability.OperationEntry, error)

	// CheckConnectivity verifies the backing store is reachable.
	CheckConnectivity(ctx context.Context) error
}

var (
	_ Journal                = (*PostgresJournal)(nil)
	_ Journal                = (*MemoryJournal)(nil)
	_ observability.Recorder = Journal(nil)
)
