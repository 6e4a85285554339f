// Package catalog is the persistent store of indexed files and their
// embeddings, kept in a single SQLite database.
//
// Each file is identified by its canonical path and carries the modification
// time it was indexed at. A file has at most one embedding, stored as a BLOB
// in the embeddings table using the vector package encoding. All embeddings
// share one dimension, fixed by the first write and remembered in
// catalog_meta.
//
// Timestamps only move forward: an upsert carrying a modification time that
// is not newer than the stored one is a no-op. Put writes a file row and its
// embedding in one transaction, so readers never see a new timestamp paired
// with a missing or stale vector.
package catalog
