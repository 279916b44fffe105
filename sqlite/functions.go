package sqlite

import (
	"database/sql/driver"
	"fmt"
	"math"
	"sync"

	sqlite3 "modernc.org/sqlite"
)

// registerOnce guards the driver-global function registry.
var registerOnce sync.Once

// registerVectorFunctions registers vec_distance_cosine with the driver.
// Registration is process-global and applies to every connection opened
// afterwards, so it runs exactly once.
func registerVectorFunctions() {
	registerOnce.Do(func() {
		_ = sqlite3.RegisterDeterministicScalarFunction("vec_distance_cosine", 2, vecDistanceCosineImpl)
	})
}

// vecDistanceCosineImpl computes the cosine distance (1 - cosine similarity)
// between two embedding BLOBs. NULL arguments yield NULL.
func vecDistanceCosineImpl(_ *sqlite3.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_distance_cosine: expected 2 arguments, got %d", len(args))
	}
	a, err := asEmbedding(args[0])
	if err != nil {
		return nil, fmt.Errorf("vec_distance_cosine: %w", err)
	}
	b, err := asEmbedding(args[1])
	if err != nil {
		return nil, fmt.Errorf("vec_distance_cosine: %w", err)
	}
	if a == nil || b == nil {
		return nil, nil
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vec_distance_cosine: dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return nil, fmt.Errorf("vec_distance_cosine: zero-magnitude vector")
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), nil
}

// asEmbedding decodes a BLOB argument into a float32 vector. NULL decodes
// to a nil vector.
func asEmbedding(arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		return DecodeEmbedding(v)
	case string:
		return DecodeEmbedding([]byte(v))
	default:
		return nil, fmt.Errorf("expected BLOB argument, got %T", arg)
	}
}
