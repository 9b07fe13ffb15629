// Package embedder provides the deterministic, dependency-free
// repository.Embedder used for tests, local development, and as the
// fallback when no production embedding service is configured. Grounded
// in the teacher's internal/rag/embedder.deterministicEmbedder: byte
// 3-grams hashed with FNV-1a into a fixed-size vector, optionally
// L2-normalized.
package embedder

import (
	"context"
	"hash/fnv"
	"math"
)

// Hash is a deterministic embedder: identical text always produces the
// identical vector, with no external calls and no model weights.
type Hash struct {
	dim       int
	normalize bool
	seed      uint64
}

// NewHash builds a Hash embedder with the given output dimension. dim
// defaults to 64 when zero or negative. Seed perturbs the hash so two
// Hash instances with different seeds never collide on the same text.
func NewHash(dim int, seed uint64) *Hash {
	if dim <= 0 {
		dim = 64
	}
	return &Hash{dim: dim, normalize: true, seed: seed}
}

// Dimension reports the embedder's fixed output size.
func (h *Hash) Dimension() int { return h.dim }

// Embed implements repository.Embedder.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, h.dim)
	b := []byte(text)
	if len(b) == 0 {
		return v, nil
	}
	if len(b) < 3 {
		h.add(b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			h.add(b[i:i+3], v)
		}
	}
	if h.normalize {
		normalize(v)
	}
	return v, nil
}

func (h *Hash) add(gram []byte, v []float32) {
	f := fnv.New64a()
	if h.seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(h.seed >> (8 * i))
		}
		_, _ = f.Write(tmp[:])
	}
	_, _ = f.Write(gram)
	hv := f.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
