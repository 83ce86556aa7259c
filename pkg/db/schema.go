package db

import "fmt"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS executions (
		id         TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		kind       TEXT NOT NULL,
		symbol     TEXT NOT NULL,
		side       TEXT NOT NULL,
		volume     REAL NOT NULL,
		price      REAL NOT NULL,
		order_id   INTEGER NOT NULL DEFAULT 0,
		deal_id    INTEGER NOT NULL DEFAULT 0,
		filling    TEXT NOT NULL DEFAULT '',
		comment    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_account ON executions(account_id, created_at)`,
}

// ApplyMigrations creates the journal schema.
func ApplyMigrations(d *Database) error {
	for i, stmt := range migrations {
		if _, err := d.DB.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
