package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCodec matches every *CodecError via errors.Is.
var ErrCodec = errors.New("vector: malformed embedding blob")

// CodecError reports an embedding BLOB that cannot be decoded.
type CodecError struct {
	Length   int // blob length in bytes
	Expected int // expected length in bytes, 0 when only alignment was checked
}

func (e *CodecError) Error() string {
	if e.Expected > 0 {
		return fmt.Sprintf("vector: invalid embedding blob length %d (want %d)", e.Length, e.Expected)
	}
	return fmt.Sprintf("vector: invalid embedding blob length %d (not multiple of 4)", e.Length)
}

func (e *CodecError) Is(target error) bool { return target == ErrCodec }

// EncodeEmbedding encodes a slice of float32 values into a BLOB representation
// suitable for storage in SQLite. The encoding is a little-endian sequence of
// IEEE 754 float32 values without a length prefix; the length is derived from
// the BLOB size on decode.
func EncodeEmbedding(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b, nil
}

// DecodeEmbedding decodes a BLOB produced by EncodeEmbedding back into a
// slice of float32 values.
func DecodeEmbedding(b []byte) ([]float32, error) {
	return DecodeEmbeddingDim(b, 0)
}

// DecodeEmbeddingDim is DecodeEmbedding with a known corpus dimension: the
// BLOB must hold exactly dim values. A dim <= 0 disables the check.
func DecodeEmbeddingDim(b []byte, dim int) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, &CodecError{Length: len(b)}
	}
	if dim > 0 && len(b) != 4*dim {
		return nil, &CodecError{Length: len(b), Expected: 4 * dim}
	}
	if len(b) == 0 {
		return nil, nil
	}
	n := len(b) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
