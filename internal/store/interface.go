package store

import (
	"context"
	"time"
)

// ShadowRecord is one persisted feature key with its last confirmed
// canonical value and hash.
type ShadowRecord struct {
	Key             string
	CanonicalValue  string
	Hash            string
	LastConfirmedAt time.Time
	UpdatedAt       time.Time
}

// ChangelogEntry records one real configuration change. Immutable once
// written; OldValue is nil for the first observation of a key.
type ChangelogEntry struct {
	ID          string
	Timestamp   time.Time
	Source      string // "system" or "user"
	Category    string
	Item        string
	OldValue    *string
	NewValue    string
	Description string
}

// Store is the relational sink: shadow state, changelog and the persisted
// rate-limit window. Every write is durable before returning.
type Store interface {
	LoadShadowState(ctx context.Context) ([]ShadowRecord, error)
	UpsertShadowState(ctx context.Context, rec ShadowRecord) error
	// TouchShadowState refreshes last_confirmed_at only (heartbeat).
	TouchShadowState(ctx context.Context, key string, ts time.Time) error

	AppendChangelog(ctx context.Context, entry ChangelogEntry) error
	ListChangelog(ctx context.Context) ([]ChangelogEntry, error)

	RecordRateCall(ctx context.Context, ts time.Time) error
	LoadRateWindow(ctx context.Context, since time.Time) ([]time.Time, error)
	PruneRateCalls(ctx context.Context, before time.Time) error

	Close() error
}
