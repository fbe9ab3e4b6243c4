package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

var _ Embedder = (*HashEmbedder)(nil)

// HashEmbedder maps token hashes into a fixed-size bag-of-words vector.
// Deterministic and offline; used by tests and as a degraded fallback when
// no embedding provider is configured. Not semantically meaningful beyond
// shared-vocabulary overlap.
type HashEmbedder struct {
	Dimensions int
}

func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedder{Dimensions: dimensions}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string, task Task) ([]float32, error) {
	vec := make([]float32, e.Dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?\"'()[]")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.Dimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
