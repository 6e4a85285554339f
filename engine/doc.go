// Package engine provides helpers for working with the modernc.org/sqlite
// driver in this module: opening file-backed or in-memory databases with the
// connection pragmas the catalog relies on. It intentionally keeps a thin
// surface so other packages can share the same driver instance.
package engine
