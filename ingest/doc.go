// Package ingest walks directories and feeds changed files through text
// extraction and embedding into the catalog.
//
// The staleness check runs before any extraction or embedding, so re-running
// over an unchanged tree costs one catalog lookup per file.
package ingest
