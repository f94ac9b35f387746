// internal/store/store.go
package store

import (
	"context"

	"repo-browser/internal/model"
)

// SyncState is the persisted lifecycle state of the sync pipeline. It is a
// tagged state rather than a boolean so "never synced" is distinguishable
// from "not currently running".
type SyncState int16

const (
	StateNeverSynced SyncState = iota
	StateIdle
	StateRunning
)

func (s SyncState) String() string {
	switch s {
	case StateNeverSynced:
		return "never_synced"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Store is the persistence boundary for cached repositories and the sync
// state flag. The syncer is the only writer of repository rows; the API layer
// only reads.
type Store interface {
	// CountRepositories returns the number of cached repository rows.
	CountRepositories(ctx context.Context) (int, error)

	// ListRepositories returns one page of cached repositories ordered by
	// name ascending. page and perPage must both be >= 1.
	ListRepositories(ctx context.Context, page, perPage int) ([]model.Repository, error)

	// UpsertBatch inserts the given repositories, overwriting language,
	// star count and updated-at on name conflicts. The batch is applied in a
	// single transaction; a failure leaves the table untouched.
	UpsertBatch(ctx context.Context, repos []model.Repository) error

	// ReadSyncState returns the current persisted sync state.
	ReadSyncState(ctx context.Context) (SyncState, error)

	// SetSyncState atomically replaces the persisted sync state.
	SetSyncState(ctx context.Context, state SyncState) error

	// BeginSync transitions the state to Running if and only if no sync is
	// currently running, as a single atomic conditional update. It returns
	// the previous state and whether the transition happened.
	BeginSync(ctx context.Context) (prev SyncState, ok bool, err error)
}
