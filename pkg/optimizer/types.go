// Package optimizer implements exact and semantic deduplication plus
// requirements-coverage analysis over validated tests (spec §4.5).
package optimizer

import "github.com/testgenai/testgen/pkg/models"

// DefaultSimilarityThreshold is the cosine-similarity floor above which two
// tests are considered semantic duplicates.
const DefaultSimilarityThreshold = 0.85

// lshBucketThreshold is the test-count above which implementations may
// bucket by an embedding prefix instead of full O(N²) comparison (spec
// §4.5) — not applied here; this package always does the full pairwise
// comparison, since its contract is defined to be pairwise-cosine
// equivalent regardless of implementation, and the expected batch sizes for
// this service do not make the O(N²) path a bottleneck worth the added
// complexity.
const lshBucketThreshold = 200

// DuplicateRecord documents one test marked as a duplicate of another.
type DuplicateRecord struct {
	TestID         string
	CanonicalID    string
	SimilarityScore float64
}

// GapInfo documents one requirement with insufficient coverage.
type GapInfo struct {
	RequirementIndex int
	RequirementText  string
	Description      string
}

// Result is the Optimizer's full output. Code fields on Unique are never
// mutated relative to the input tests.
type Result struct {
	Unique         []*models.TestCase
	Duplicates     []DuplicateRecord
	Coverage       []*models.CoverageAnalysis
	Gaps           []GapInfo
	CoverageScore  float64
}
