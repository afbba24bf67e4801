package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soldalen/heatpumpctl/internal/errors"
	"github.com/soldalen/heatpumpctl/internal/logger"
)

const defaultDirPerm = 0o755

type sqliteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (and if needed creates) the SQLite store at path. The
// connection uses WAL so the collector's writes stay durable without
// blocking reads from the dashboard API.
func Open(path string) (Store, error) {
	errFactory := errors.New()

	if path == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	logger.Debug().Msgf("Initializing relational store at: %s", path)

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	dsn := path + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) LoadShadowState(ctx context.Context) ([]ShadowRecord, error) {
	errFactory := errors.New()

	rows, err := s.db.QueryContext(ctx, `
        SELECT key, canonical_value, hash, last_confirmed_at, updated_at
        FROM shadow_state
    `)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var records []ShadowRecord
	for rows.Next() {
		var rec ShadowRecord
		var confirmed, updated int64
		if err := rows.Scan(&rec.Key, &rec.CanonicalValue, &rec.Hash, &confirmed, &updated); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		rec.LastConfirmedAt = time.Unix(confirmed, 0).UTC()
		rec.UpdatedAt = time.Unix(updated, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return records, nil
}

func (s *sqliteStore) UpsertShadowState(ctx context.Context, rec ShadowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO shadow_state (key, canonical_value, hash, last_confirmed_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET
            canonical_value = excluded.canonical_value,
            hash = excluded.hash,
            last_confirmed_at = excluded.last_confirmed_at,
            updated_at = excluded.updated_at
    `,
		rec.Key,
		rec.CanonicalValue,
		rec.Hash,
		rec.LastConfirmedAt.Unix(),
		rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *sqliteStore) TouchShadowState(ctx context.Context, key string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
        UPDATE shadow_state SET last_confirmed_at = ? WHERE key = ?
    `, ts.Unix(), key)
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *sqliteStore) AppendChangelog(ctx context.Context, entry ChangelogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO changelog (id, timestamp, source, category, item, old_value, new_value, description)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `,
		entry.ID,
		entry.Timestamp.Unix(),
		entry.Source,
		entry.Category,
		entry.Item,
		entry.OldValue,
		entry.NewValue,
		entry.Description,
	)
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *sqliteStore) ListChangelog(ctx context.Context) ([]ChangelogEntry, error) {
	errFactory := errors.New()

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, timestamp, source, category, item, old_value, new_value, description
        FROM changelog
        ORDER BY timestamp, id
    `)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var entries []ChangelogEntry
	for rows.Next() {
		var entry ChangelogEntry
		var ts int64
		if err := rows.Scan(&entry.ID, &ts, &entry.Source, &entry.Category, &entry.Item,
			&entry.OldValue, &entry.NewValue, &entry.Description); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		entry.Timestamp = time.Unix(ts, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return entries, nil
}

func (s *sqliteStore) RecordRateCall(ctx context.Context, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO ratelimit_calls (ts) VALUES (?)`, ts.Unix())
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *sqliteStore) LoadRateWindow(ctx context.Context, since time.Time) ([]time.Time, error) {
	errFactory := errors.New()

	rows, err := s.db.QueryContext(ctx, `
        SELECT ts FROM ratelimit_calls WHERE ts >= ? ORDER BY ts
    `, since.Unix())
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var calls []time.Time
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		calls = append(calls, time.Unix(ts, 0).UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return calls, nil
}

func (s *sqliteStore) PruneRateCalls(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM ratelimit_calls WHERE ts < ?`, before.Unix())
	if err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	if err := s.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	return nil
}
