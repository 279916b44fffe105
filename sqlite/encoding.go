package sqlite

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// EncodeEmbedding encodes an embedding as a little-endian float32 BLOB,
// 4 bytes per component. An empty embedding encodes to nil.
func EncodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeEmbedding decodes a BLOB produced by EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

// EmbeddingLiteral renders an embedding as a SQL blob literal (x'...').
// Embeddings are inlined into statements rather than bound because
// parameters cross the worker boundary as JSON, which cannot carry
// fixed-width float arrays losslessly.
func EmbeddingLiteral(vec []float32) string {
	return "x'" + hex.EncodeToString(EncodeEmbedding(vec)) + "'"
}
