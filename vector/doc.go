// Package vector holds the embedding primitives shared by the catalog and the
// similarity engine:
//   - EncodeEmbedding/DecodeEmbedding: the fixed little-endian float32 BLOB
//     layout stored in the embeddings table
//   - CodecError for malformed BLOBs
//   - cosine similarity and L2 distance helpers
package vector
