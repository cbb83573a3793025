package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testgenai/testgen/pkg/models"
)

func TestCanonicalize_StripsTrailingWhitespaceAndNormalizesLineEndings(t *testing.T) {
	a := canonicalize("line one  \r\nline two\t\r\n")
	b := canonicalize("line one\nline two")
	assert.Equal(t, a, b)
}

func TestExactDedup_KeepsFirstInsertedAndMarksRestDuplicate(t *testing.T) {
	tests := []*models.TestCase{
		{ID: "a", Code: "assert True"},
		{ID: "b", Code: "assert True  "},
		{ID: "c", Code: "assert False"},
	}
	kept, dups := exactDedup(tests)

	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ID)
	require.Len(t, dups, 1)
	assert.Equal(t, "b", dups[0].TestID)
	assert.Equal(t, "a", dups[0].CanonicalID)
	assert.Equal(t, 1.0, dups[0].SimilarityScore)
}

func TestCosineSimilarity_IdenticalVectorsAreOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_OrthogonalVectorsAreZero(t *testing.T) {
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarity_MismatchedLengthIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestSemanticDedup_MarksSimilarTestsAsDuplicateOfSmallestIndex(t *testing.T) {
	tests := []*models.TestCase{
		{ID: "a", SemanticEmbedding: []float32{1, 0, 0}},
		{ID: "b", SemanticEmbedding: []float32{0.99, 0.01, 0}},
		{ID: "c", SemanticEmbedding: []float32{0, 1, 0}},
	}
	kept, dups := semanticDedup(tests, 0.9)

	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ID)
	assert.Equal(t, "c", kept[1].ID)
	require.Len(t, dups, 1)
	assert.Equal(t, "b", dups[0].TestID)
	assert.Equal(t, "a", dups[0].CanonicalID)
}

func TestSemanticDedup_BelowThresholdKeepsBoth(t *testing.T) {
	tests := []*models.TestCase{
		{ID: "a", SemanticEmbedding: []float32{1, 0}},
		{ID: "b", SemanticEmbedding: []float32{0, 1}},
	}
	kept, dups := semanticDedup(tests, 0.85)
	assert.Len(t, kept, 2)
	assert.Empty(t, dups)
}
