package store

import (
	"database/sql"
	"fmt"
)

// SetupSchema creates the responses table and its indexes. It is
// idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaResponses = `
CREATE TABLE IF NOT EXISTS responses (
    id TEXT PRIMARY KEY,
    survey_id TEXT NOT NULL DEFAULT '',
    form_type TEXT NOT NULL DEFAULT '',
    ru_ref TEXT NOT NULL DEFAULT '',
    period TEXT NOT NULL DEFAULT '',
    tx_id TEXT NOT NULL DEFAULT '',
    invalid INTEGER NOT NULL DEFAULT 0,
    added_ms INTEGER NOT NULL,
    added_date TEXT NOT NULL,
    digest TEXT NOT NULL UNIQUE,
    compression TEXT NOT NULL DEFAULT 'none',
    size INTEGER NOT NULL,
    body BLOB NOT NULL
);
`
		indexCoordinates = `CREATE INDEX IF NOT EXISTS idx_responses_coordinates ON responses (survey_id, form_type, ru_ref, period);`
		indexAdded       = `CREATE INDEX IF NOT EXISTS idx_responses_added ON responses (added_ms);`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaResponses); err != nil {
		return fmt.Errorf("could not create responses schema: %w", err)
	}
	if _, err = tx.Exec(indexCoordinates); err != nil {
		return fmt.Errorf("could not create coordinates index: %w", err)
	}
	if _, err = tx.Exec(indexAdded); err != nil {
		return fmt.Errorf("could not create added index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}
