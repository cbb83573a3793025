package llm

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// fallbackEmbedding derives a deterministic, L2-normalized embedding from
// text when the upstream embedding call is unavailable. It is stable across
// runs (same text always yields the same vector) but carries none of the
// upstream model's semantic structure; callers that rely on it for
// similarity (pkg/optimizer's semantic dedup) degrade to exact-text
// sensitivity rather than true near-duplicate detection.
func fallbackEmbedding(text string, dim int) []float32 {
	out := make([]float32, dim)
	seed := sha256.Sum256([]byte(text))

	block := seed[:]
	counter := uint32(0)
	for i := 0; i < dim; i++ {
		if i%len(block) == 0 && i > 0 {
			counter++
			var ctr [4]byte
			binary.BigEndian.PutUint32(ctr[:], counter)
			next := sha256.Sum256(append(seed[:], ctr[:]...))
			block = next[:]
		}
		b := block[i%len(block)]
		// Map a byte to a small signed float so components spread roughly
		// symmetrically around zero before normalization.
		out[i] = float32(int(b)-128) / 128.0
	}

	normalize(out)
	return out
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
