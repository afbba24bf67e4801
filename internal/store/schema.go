package store

import (
	"database/sql"

	"github.com/soldalen/heatpumpctl/internal/errors"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS shadow_state (
	       key               TEXT PRIMARY KEY,
	       canonical_value   TEXT NOT NULL,
	       hash              TEXT NOT NULL,
	       last_confirmed_at INTEGER NOT NULL,
	       updated_at        INTEGER NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS changelog (
	       id          TEXT PRIMARY KEY,
	       timestamp   INTEGER NOT NULL,
	       source      TEXT NOT NULL CHECK (source IN ('system', 'user')),
	       category    TEXT NOT NULL,
	       item        TEXT NOT NULL,
	       old_value   TEXT,
	       new_value   TEXT NOT NULL,
	       description TEXT NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_changelog_timestamp ON changelog (timestamp);
	   CREATE TABLE IF NOT EXISTS ratelimit_calls (
	       ts INTEGER NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_ratelimit_calls_ts ON ratelimit_calls (ts);`
)

// InitSchema creates the schema and records the current version. Safe to
// run on an existing database.
func InitSchema(db *sql.DB) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if _, err := tx.Exec(`
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	return nil
}

// GetSchemaVersion returns the highest applied schema version, 0 for a
// fresh database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	var version int
	err := db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	return version, nil
}
