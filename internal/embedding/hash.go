package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// HashEmbedder derives a deterministic pseudo-vector from a SHA-256 hash of
// the input so the ingestion and retrieval paths stay testable without live
// credentials. It carries no semantic signal and must never be selected in a
// production environment; wiring code guards that.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

// Dimension returns the fixed vector length this embedder produces.
func (e *HashEmbedder) Dimension() int { return e.dim }

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

// embed expands the text hash into dim floats in [-1, 1] by iterated hashing,
// then L2-normalizes the result.
func (e *HashEmbedder) embed(text string) []float32 {
	seed := sha256.Sum256([]byte(text))

	vector := make([]float32, e.dim)
	var block [32]byte
	copy(block[:], seed[:])
	for i := 0; i < e.dim; {
		block = sha256.Sum256(block[:])
		for off := 0; off+8 <= len(block) && i < e.dim; off += 8 {
			bits := binary.BigEndian.Uint64(block[off : off+8])
			// map to [-1, 1)
			vector[i] = float32(int64(bits)) / float32(math.MaxInt64)
			i++
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vector
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}
