package catalog

import (
	"context"
	"database/sql"
)

// schema is applied on every open. Statements are additive only so reopening
// an existing catalog never drops rows.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS files (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    path          TEXT    NOT NULL UNIQUE,
    name          TEXT    NOT NULL,
    extension     TEXT    NOT NULL DEFAULT '',
    last_modified INTEGER NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS embeddings (
    file_id INTEGER PRIMARY KEY REFERENCES files(id) ON DELETE CASCADE,
    vector  BLOB    NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS catalog_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS files_last_modified ON files(last_modified DESC);`,
}

const metaDimension = "dimension"

// EnsureSchema creates the catalog tables in db if they do not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin schema", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return storageErr("create schema", err)
		}
	}
	return storageErr("commit schema", tx.Commit())
}
