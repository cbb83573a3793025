package optimizer

import (
	"context"
	"fmt"

	"github.com/testgenai/testgen/pkg/llm"
	"github.com/testgenai/testgen/pkg/models"
)

// Embedder is the subset of llm.Client the Optimizer needs: a fixed-dim
// vector per test, real or deterministic-fallback (spec §4.6).
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Optimizer runs exact dedup, semantic dedup, and coverage analysis over the
// tests that survived validation (status ∈ {passed, warning}).
type Optimizer struct {
	embedder  Embedder
	threshold float64
}

// NewOptimizer constructs an Optimizer. A non-positive threshold falls back
// to DefaultSimilarityThreshold.
func NewOptimizer(embedder Embedder, threshold float64) *Optimizer {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Optimizer{embedder: embedder, threshold: threshold}
}

// Run performs exact dedup, then semantic dedup (populating embeddings where
// missing), then coverage analysis. tests must already be filtered to
// validation_status ∈ {passed, warning}; Run does not mutate any Code field.
func (o *Optimizer) Run(ctx context.Context, requestID string, requirements []string, tests []*models.TestCase) (*Result, error) {
	kept, exactDups := exactDedup(tests)

	for _, tc := range kept {
		if len(tc.SemanticEmbedding) == 0 {
			embedding, err := o.embedder.GetEmbedding(ctx, tc.Code)
			if err != nil {
				return nil, fmt.Errorf("optimizer: embedding for test %s: %w", tc.ID, err)
			}
			tc.SemanticEmbedding = embedding
		}
	}

	unique, semanticDups := semanticDedup(kept, o.threshold)

	coverage, gaps, score := analyzeCoverage(requestID, requirements, unique)

	return &Result{
		Unique:        unique,
		Duplicates:    append(exactDups, semanticDups...),
		Coverage:      coverage,
		Gaps:          gaps,
		CoverageScore: score,
	}, nil
}

var _ Embedder = (llm.Client)(nil)
