// Package bruteforce provides a vector index that answers kNN queries by
// scanning every vector, scoring with cosine similarity (or an inverse L2
// distance) and sorting the whole corpus.
package bruteforce
