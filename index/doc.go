// Package index defines a minimal abstraction for vector indexes that are
// built from a snapshot of embedded files and queried for the k most similar
// entries. Implementations in this module include a brute-force baseline.
package index
