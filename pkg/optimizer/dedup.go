package optimizer

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"github.com/testgenai/testgen/pkg/models"
)

// canonicalize strips trailing whitespace per line and normalizes line
// endings, the minimum canonicalization spec §4.5 requires before hashing.
func canonicalize(code string) string {
	normalized := strings.ReplaceAll(code, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func codeHash(code string) string {
	sum := sha256.Sum256([]byte(canonicalize(code)))
	return hex.EncodeToString(sum[:])
}

// exactDedup groups tests by code_hash, keeping the first-inserted test in
// each group (generator output order) and marking the rest as duplicates of
// it with similarity_score 1.0.
func exactDedup(tests []*models.TestCase) (kept []*models.TestCase, dups []DuplicateRecord) {
	seen := make(map[string]*models.TestCase, len(tests))

	for _, tc := range tests {
		tc.CodeHash = codeHash(tc.Code)
		if canonical, ok := seen[tc.CodeHash]; ok {
			dups = append(dups, DuplicateRecord{
				TestID:          tc.ID,
				CanonicalID:     canonical.ID,
				SimilarityScore: 1.0,
			})
			continue
		}
		seen[tc.CodeHash] = tc
		kept = append(kept, tc)
	}

	return kept, dups
}

// cosineSimilarity computes the cosine similarity of two equal-length
// vectors. Returns 0 if either is the zero vector.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// semanticDedup marks tests as duplicates of an earlier-kept test when their
// embedding cosine similarity meets threshold. Ties (similar to more than one
// already-kept test) attach to the smallest index, since comparisons proceed
// in index order and the first sufficiently-similar match wins.
func semanticDedup(tests []*models.TestCase, threshold float64) (kept []*models.TestCase, dups []DuplicateRecord) {
	keptIdx := make([]int, 0, len(tests))

	for i, tc := range tests {
		matchedIdx := -1
		var bestScore float64
		for _, j := range keptIdx {
			score := cosineSimilarity(tc.SemanticEmbedding, tests[j].SemanticEmbedding)
			if score >= threshold {
				matchedIdx = j
				bestScore = score
				break
			}
		}
		if matchedIdx == -1 {
			keptIdx = append(keptIdx, i)
			kept = append(kept, tc)
			continue
		}
		dups = append(dups, DuplicateRecord{
			TestID:          tc.ID,
			CanonicalID:     tests[matchedIdx].ID,
			SimilarityScore: bestScore,
		})
	}

	return kept, dups
}
