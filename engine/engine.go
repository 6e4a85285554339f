package engine

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// Memory is the DSN of a private in-memory database.
const Memory = ":memory:"

// defaultPragmas are applied to every file-backed connection. Foreign keys
// must be on per connection for ON DELETE CASCADE to fire.
var defaultPragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
}

// Open opens a SQLite database using the modernc.org/sqlite driver.
//
// For file-based databases, pass a path like "./cortex.db"; the connection
// pragmas and an immediate transaction lock mode are appended to it. For
// in-memory databases, pass ":memory:"; the pool is pinned to a single
// connection since every new connection would otherwise see its own empty
// database.
func Open(dsn string) (*sql.DB, error) {
	if dsn == Memory {
		db, err := sql.Open("sqlite", Memory+"?"+pragmaQuery([]string{"foreign_keys(1)"}))
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		return db, nil
	}
	return sql.Open("sqlite", DSN(dsn))
}

// DSN expands a plain database path into a driver DSN carrying the default
// pragmas. DSNs that already have a query string are returned unchanged.
func DSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?" + pragmaQuery(defaultPragmas) + "&_txlock=immediate"
}

func pragmaQuery(pragmas []string) string {
	values := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		values = append(values, "_pragma="+p)
	}
	return strings.Join(values, "&")
}
